// Package scanner invokes the external quality and security scanners.
// Every scanner is a separate process run against the fetched source
// tree; freighter only interprets its exit condition and archives its
// output, it knows nothing about scanner internals.
package scanner

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	pipeline "github.com/input-output-hk/freighter/src/config"
	"github.com/input-output-hk/freighter/src/domain"
)

type ExecScanner struct {
	logger zerolog.Logger
}

func NewExecScanner(logger *zerolog.Logger) *ExecScanner {
	return &ExecScanner{
		logger: logger.With().Str("component", "ExecScanner").Logger(),
	}
}

// Scan runs the gate's scanner command in the workspace and archives
// its output under reports/. A non-zero exit is a failing result, a
// process that could not run at all is an error result.
func (self *ExecScanner) Scan(ctx context.Context, workspace string, gate pipeline.Gate) (domain.GateStatus, string) {
	cmd := exec.CommandContext(ctx, gate.Command[0], gate.Command[1:]...)
	cmd.Dir = workspace
	cmd.Env = append(os.Environ(),
		"FREIGHTER_WORKSPACE="+workspace,
		"FREIGHTER_SEVERITIES="+strings.Join(gate.Severities, ","),
	)

	self.logger.Debug().Str("gate", gate.Name).Strs("command", cmd.Args).Msg("Running scanner")

	output, err := cmd.CombinedOutput()

	if archiveErr := self.archive(workspace, gate.Name, output); archiveErr != nil {
		self.logger.Warn().Err(archiveErr).Str("gate", gate.Name).Msg("Could not archive scanner output")
	}

	detail := strings.TrimSpace(string(output))

	switch {
	case err == nil:
		return domain.GateStatusPass, detail
	case isExitError(err):
		return domain.GateStatusFail, detail
	default:
		return domain.GateStatusError, err.Error()
	}
}

func isExitError(err error) bool {
	exitErr := &exec.ExitError{}
	return errors.As(err, &exitErr)
}

func (self *ExecScanner) archive(workspace, gateName string, output []byte) error {
	dir := filepath.Join(workspace, "reports")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, gateName+".log"), output, 0o644)
}
