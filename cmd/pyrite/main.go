// Command pyrite translates typed Python to Rust, validates the result and
// drives whole corpora toward a target compile rate.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pyrite-lang/pyrite/internal/cache"
	"github.com/pyrite-lang/pyrite/internal/cli"
	"github.com/pyrite-lang/pyrite/internal/config"
)

const toolName = "pyrite"

// command describes a CLI subcommand.
type command struct {
	info cli.CommandInfo
	run  func(a *app, args []string) int
}

// app carries the streams and shared settings of one invocation.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	log    *cli.Logger

	configPath string
	verbose    bool
	debug      bool
}

var commands []command

func init() {
	commands = []command{
		{translateInfo, (*app).cmdTranslate},
		{checkInfo, (*app).cmdCheck},
		{analyzeInfo, (*app).cmdAnalyze},
		{compileInfo, (*app).cmdCompile},
		{convergeInfo, (*app).cmdConverge},
		{cacheInfo, (*app).cmdCache},
		{replInfo, (*app).cmdRepl},
		{versionInfo, (*app).cmdVersion},
	}
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	a := &app{stdin: stdin, stdout: stdout, stderr: stderr}
	if len(args) == 0 {
		a.usage(stderr)
		return cli.ExitUsage
	}
	sub, rest := args[0], args[1:]
	switch sub {
	case "help", "-h", "--help":
		if len(rest) > 0 {
			if c := lookup(rest[0]); c != nil {
				cli.PrintCommandUsage(stdout, toolName, c.info)
				return cli.ExitOK
			}
		}
		a.usage(stdout)
		return cli.ExitOK
	case "-v", "--version":
		sub = "version"
	}
	c := lookup(sub)
	if c == nil {
		fmt.Fprintf(stderr, "unknown command: %s\n\n", sub)
		a.usage(stderr)
		return cli.ExitUsage
	}
	return c.run(a, rest)
}

func lookup(name string) *command {
	for i := range commands {
		if commands[i].info.Name == name {
			return &commands[i]
		}
	}
	return nil
}

func (a *app) usage(w io.Writer) {
	infos := make([]cli.CommandInfo, 0, len(commands)+1)
	for _, c := range commands {
		infos = append(infos, c.info)
	}
	infos = append(infos, cli.CommandInfo{Name: "help", Description: "Show help for a command"})
	cli.PrintUsage(w, toolName, infos)
}

// flags returns a flag set carrying the options shared by every command.
func (a *app) flags(info cli.CommandInfo) *flag.FlagSet {
	fs := flag.NewFlagSet(info.Name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	fs.StringVar(&a.configPath, "config", "", "configuration file (default ./pyrite.yaml or $PYRITE_CONFIG)")
	fs.BoolVar(&a.verbose, "verbose", false, "log progress")
	fs.BoolVar(&a.debug, "debug", false, "log debug detail")
	fs.Usage = func() { cli.PrintCommandUsage(a.stderr, toolName, info) }
	return fs
}

// parse parses args, allowing flags after positional arguments, and
// returns the positionals. ok is false when the command should exit with
// code right away.
func (a *app) parse(fs *flag.FlagSet, args []string) (pos []string, code int, ok bool) {
	for {
		if err := fs.Parse(args); err != nil {
			if errors.Is(err, flag.ErrHelp) {
				return nil, cli.ExitOK, false
			}
			return nil, cli.ExitUsage, false
		}
		rest := fs.Args()
		if len(rest) == 0 {
			break
		}
		pos = append(pos, rest[0])
		args = rest[1:]
	}
	a.log = cli.NewLogger(a.verbose, a.debug)
	a.log.Out = a.stderr
	return pos, 0, true
}

func (a *app) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return nil, err
	}
	a.log.Debug("config: cache %s, display %s", cfg.Cache.Dir, cfg.Converge.Display)
	return cfg, nil
}

// openCache opens the translation cache, or returns nil when it is
// disabled or held by another process.
func (a *app) openCache(cfg *config.Config) *cache.Cache {
	if !cfg.Cache.Enabled {
		return nil
	}
	c, err := cache.Open(cfg.Cache, cache.Options{})
	if err != nil {
		a.log.Warn("cache disabled: %v", err)
		return nil
	}
	return c
}

// fail reports err and maps it to an exit code.
func (a *app) fail(err error) int {
	var ue *cli.UsageError
	if errors.As(err, &ue) {
		fmt.Fprintln(a.stderr, ue.Msg)
		return cli.ExitUsage
	}
	fmt.Fprintf(a.stderr, "error: %v\n", err)
	return cli.ExitTranslateErrors
}

func usageErr(format string, args ...interface{}) error {
	return &cli.UsageError{Msg: fmt.Sprintf(format, args...)}
}

// oneArg extracts the single positional argument of a command.
func oneArg(pos []string, info cli.CommandInfo) (string, error) {
	if err := cli.ValidateArgs(pos, 1, info.Usage); err != nil {
		return "", err
	}
	if len(pos) > 1 {
		return "", usageErr("unexpected arguments: %s\nUsage: %s", strings.Join(pos[1:], " "), info.Usage)
	}
	return pos[0], nil
}
