// Package builder drives the external container image builder.
// The build process itself is out of scope; freighter hands the
// builder a source directory and expects an OCI image layout back.
package builder

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	pipeline "github.com/input-output-hk/freighter/src/config"
	"github.com/input-output-hk/freighter/src/domain"
	"github.com/input-output-hk/freighter/src/util"
)

type ExecBuilder struct {
	logger  zerolog.Logger
	command []string
}

func NewExecBuilder(build pipeline.Build, logger *zerolog.Logger) *ExecBuilder {
	return &ExecBuilder{
		logger:  logger.With().Str("component", "ExecBuilder").Logger(),
		command: build.Command,
	}
}

// Build runs the builder command for one component. The command reads
// the source from FREIGHTER_SOURCE and must leave a tagged OCI image
// layout at FREIGHTER_LAYOUT, or exit non-zero leaving nothing behind.
func (self *ExecBuilder) Build(ctx context.Context, contextDir, layoutDir string, ref domain.ImageReference) error {
	if err := os.MkdirAll(filepath.Dir(layoutDir), 0o755); err != nil {
		return errors.WithMessage(err, "While creating the layout directory")
	}

	cmd := exec.CommandContext(ctx, self.command[0], self.command[1:]...)
	cmd.Dir = contextDir
	cmd.Env = append(os.Environ(),
		"FREIGHTER_SOURCE="+contextDir,
		"FREIGHTER_IMAGE="+ref.String(),
		"FREIGHTER_LAYOUT="+layoutDir,
	)

	stdout, stdoutBuf, stderr, stderrBuf, err := util.BufPipes(cmd)
	if err != nil {
		return errors.WithMessage(err, "While preparing the builder pipes")
	}

	self.logger.Debug().Stringer("image", ref).Strs("command", cmd.Args).Msg("Building image")

	if err := cmd.Start(); err != nil {
		return errors.WithMessage(err, "While starting the builder")
	}

	// Stream builder output to the log while it is buffered for error reporting.
	done := make(chan struct{}, 2)
	go self.stream(stdout, "stdout", done)
	go self.stream(stderr, "stderr", done)
	<-done
	<-done

	if err := cmd.Wait(); err != nil {
		// A failed build must leave no layout for later stages to pick up.
		if removeErr := os.RemoveAll(layoutDir); removeErr != nil {
			self.logger.Warn().Err(removeErr).Str("layout", layoutDir).Msg("Could not remove partial layout")
		}
		return errors.WithMessagef(err, "Builder failed. Stdout: %s Stderr: %s",
			stdoutBuf.String(), stderrBuf.String())
	}

	return nil
}

func (self *ExecBuilder) stream(pipe io.Reader, name string, done chan<- struct{}) {
	defer func() { done <- struct{}{} }()

	scanner := bufio.NewScanner(pipe)
	for scanner.Scan() {
		self.logger.Debug().Str("pipe", name).Msg(scanner.Text())
	}
}
