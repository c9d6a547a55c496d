package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"github.com/pyrite-lang/pyrite/internal/cli"
	"github.com/pyrite-lang/pyrite/internal/format"
	"github.com/pyrite-lang/pyrite/internal/position"
	"github.com/pyrite-lang/pyrite/internal/transpile"
)

const (
	historyFile = ".pyrite_history"
	promptMain  = ">>> "
	promptCont  = "... "
	replFile    = "<repl>.py"
)

var replInfo = cli.CommandInfo{
	Name:        "repl",
	Usage:       "pyrite repl",
	Description: "Type Python and watch the Rust translation change",
	Examples:    []string{"pyrite repl"},
}

// session accumulates the Python typed so far. A block is kept only when
// the whole session still translates.
type session struct {
	cfg    transpile.Config
	blocks []string
	rust   string
}

func (s *session) source() string {
	if len(s.blocks) == 0 {
		return ""
	}
	return strings.Join(s.blocks, "\n") + "\n"
}

// add translates the session with block appended and writes either the
// diagnostics or the change in the Rust output to w.
func (s *session) add(w io.Writer, block string) bool {
	src := strings.Join(append(append([]string(nil), s.blocks...), block), "\n") + "\n"
	art, err := transpile.Translate(replFile, src, s.cfg)
	var fail *transpile.Failure
	switch {
	case errors.As(err, &fail):
		fmt.Fprint(w, fail.Diagnostics.Format(position.NewSourceFile(replFile, src)))
		return false
	case err != nil:
		fmt.Fprintf(w, "error: %v\n", err)
		return false
	}
	if len(art.Diagnostics) > 0 {
		fmt.Fprint(w, art.Diagnostics.Format(position.NewSourceFile(replFile, src)))
	}
	if art.Severity == transpile.Errors {
		return false
	}
	opts := format.DefaultDiffOptions()
	if diff := format.Diff(s.rust, art.Code, opts); diff.HasChanges() {
		fmt.Fprint(w, format.Render("main.rs", diff, opts))
	}
	s.blocks = append(s.blocks, block)
	s.rust = art.Code
	return true
}

func (s *session) reset() {
	s.blocks = nil
	s.rust = ""
}

// command runs a ":" command and reports whether the REPL should exit.
func (s *session) command(w io.Writer, line string) (exit bool) {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case ":quit", ":q", ":exit":
		return true
	case ":reset":
		s.reset()
		fmt.Fprintln(w, "session cleared")
	case ":show":
		fmt.Fprint(w, s.source())
	case ":rust":
		fmt.Fprint(w, s.rust)
	case ":help":
		fmt.Fprintln(w, ":show  print the Python entered so far")
		fmt.Fprintln(w, ":rust  print the current translation")
		fmt.Fprintln(w, ":reset start over")
		fmt.Fprintln(w, ":quit  leave")
	default:
		fmt.Fprintln(w, "unknown command. Type :help for a list.")
	}
	return false
}

func (a *app) cmdRepl(args []string) int {
	fs := a.flags(replInfo)
	if _, code, ok := a.parse(fs, args); !ok {
		return code
	}
	cfg, err := a.loadConfig()
	if err != nil {
		return a.fail(err)
	}
	tcfg := transpile.FromConfig(cfg)
	tcfg.ModuleName = "repl"
	s := &session{cfg: tcfg}

	fmt.Fprintf(a.stdout, "%s %s. Blocks end with an empty line; :help lists commands.\n", toolName, cli.Version)

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)
	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	for {
		block, ok := readBlock(ln)
		if !ok {
			fmt.Fprintln(a.stdout)
			return cli.ExitOK
		}
		if strings.TrimSpace(block) == "" {
			continue
		}
		ln.AppendHistory(strings.ReplaceAll(block, "\n", " "))
		if strings.HasPrefix(strings.TrimSpace(block), ":") {
			if s.command(a.stdout, block) {
				return cli.ExitOK
			}
			continue
		}
		s.add(a.stdout, block)
	}
}

// readBlock reads one statement. A line ending in ':' opens a block that
// runs until an empty line. ok is false on end of input or Ctrl+C.
func readBlock(ln *liner.State) (string, bool) {
	line, err := ln.Prompt(promptMain)
	if err != nil {
		return "", false
	}
	if !opensBlock(line) {
		return line, true
	}
	lines := []string{line}
	for {
		next, err := ln.Prompt(promptCont)
		if errors.Is(err, liner.ErrPromptAborted) {
			return "", true
		}
		if err != nil || strings.TrimSpace(next) == "" {
			return strings.Join(lines, "\n"), true
		}
		lines = append(lines, next)
	}
}

func opensBlock(line string) bool {
	t := strings.TrimSpace(line)
	if i := strings.Index(t, "#"); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	return strings.HasSuffix(t, ":") && !strings.HasPrefix(t, ":")
}
