package main

import (
	"fmt"
	"os"

	"github.com/alexflint/go-arg"
	"github.com/rs/zerolog"

	freighter "github.com/input-output-hk/freighter/src"
	"github.com/input-output-hk/freighter/src/config"
	"github.com/input-output-hk/freighter/src/domain"
)

var buildVersion = "dev"
var buildCommit = "dirty"

func main() {
	args := &CLI{}
	parser, err := parseArgs(args)
	abort(parser, err)

	logger := config.ConfigureLogger(args.Debug)

	domain.BuildInfo.Version = buildVersion
	domain.BuildInfo.Commit = buildCommit

	abort(parser, Run(parser, args, logger))
}

type CLI struct {
	Debug bool                `arg:"--debug" help:"debugging output"`
	Run   *freighter.RunCmd   `arg:"subcommand:run" help:"execute one delivery run for a commit"`
	Start *freighter.StartCmd `arg:"subcommand:start" help:"run as a daemon that polls for new commits"`
}

func Version() string {
	return fmt.Sprintf("%s (%s)", buildVersion, buildCommit)
}

func (CLI) Version() string {
	return fmt.Sprintf("freighter %s", Version())
}

func abort(parser *arg.Parser, err error) {
	switch err {
	case nil:
		return
	case arg.ErrHelp:
		parser.WriteHelp(os.Stderr)
		os.Exit(0)
	case arg.ErrVersion:
		fmt.Fprintln(os.Stdout, Version())
		os.Exit(0)
	default:
		fmt.Fprint(os.Stderr, err, "\n")
		os.Exit(1)
	}
}

func parseArgs(args *CLI) (parser *arg.Parser, err error) {
	parser, err = arg.NewParser(arg.Config{}, args)
	if err != nil {
		return
	}

	err = parser.Parse(os.Args[1:])
	return
}

func Run(parser *arg.Parser, args *CLI, logger *zerolog.Logger) error {
	switch {
	case args.Run != nil:
		return args.Run.Run(logger)
	case args.Start != nil:
		return args.Start.Run(logger)
	default:
		parser.WriteHelp(os.Stderr)
	}
	return nil
}
