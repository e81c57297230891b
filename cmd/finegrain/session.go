package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jward/finegrain"
)

var sessionCmd = &cobra.Command{
	Use:   "session [dir]",
	Short: "Keep a checked program in memory and update it on request",
	Long: `Builds the program, then reads commands from stdin, one per line:

  update <file>...   recheck after the files changed (or were created)
  remove <file>...   recheck after the files were deleted
  messages           print the current diagnostics
  triggered          print the triggers fired by the last update
  deps [prefix]...   print the dependency map
  stats              print per-module object counts
  quit               end the session`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w, msgs, _, err := buildWorkspace(cmd.Context(), "session", args)
		if err != nil {
			return err
		}
		defer w.Close()
		s := &session{w: w, out: os.Stdout, text: textOutput()}
		s.printResult("build", msgs)
		return s.run(cmd.Context(), os.Stdin)
	},
}

// session serves update requests against one workspace.
type session struct {
	w    *workspace
	out  io.Writer
	text bool
}

// run reads commands from in until it is exhausted or "quit" is read.
// Errors of single commands are printed and do not end the session.
func (s *session) run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		command, args := fields[0], fields[1:]
		if command == "quit" || command == "exit" {
			return nil
		}
		if err := s.do(ctx, command, args); err != nil {
			s.printError(command, err)
		}
	}
	return scanner.Err()
}

func (s *session) do(ctx context.Context, command string, args []string) error {
	e := s.w.engine
	switch command {
	case "update", "remove":
		if len(args) == 0 {
			return fmt.Errorf("%s: no files given", command)
		}
		sources := make([]finegrain.Source, 0, len(args))
		for _, arg := range args {
			src, err := s.w.source(arg)
			if err != nil {
				return err
			}
			sources = append(sources, src)
		}
		var msgs []string
		var err error
		if command == "update" {
			msgs, err = e.Update(ctx, sources, nil)
		} else {
			msgs, err = e.Update(ctx, nil, sources)
		}
		if err != nil {
			return err
		}
		s.printResult(command, msgs)
	case "messages":
		s.printResult(command, e.Messages())
	case "triggered":
		s.printLines(e.Triggered())
	case "deps":
		s.printLines(e.Deps(args...))
	case "stats":
		stats, err := loadedStats(ctx, s.w)
		if err != nil {
			return err
		}
		if !s.text {
			return writeJSON(s.out, toStatsResults(stats))
		}
		formatStatsText(s.out, stats)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
	return nil
}

func (s *session) printResult(command string, msgs []string) {
	e := s.w.engine
	if s.text {
		formatMessagesText(s.out, msgs, sourceCount(e.ModulePaths()))
		return
	}
	result := checkResult{
		Command:   command,
		Messages:  msgs,
		Triggered: e.Triggered(),
		Updated:   e.UpdatedModules(),
	}
	if msgs == nil {
		result.Messages = []string{}
	}
	if blocked, ok := e.Blocked(); ok {
		result.Blocked = blocked.ID
	}
	_ = writeJSON(s.out, result)
}

func (s *session) printLines(lines []string) {
	if !s.text {
		if lines == nil {
			lines = []string{}
		}
		_ = writeJSON(s.out, lines)
		return
	}
	for _, line := range lines {
		fmt.Fprintln(s.out, line)
	}
}

func (s *session) printError(command string, err error) {
	if !s.text {
		_ = writeJSON(s.out, checkResult{Command: command, Messages: []string{}, Error: err.Error()})
		return
	}
	fmt.Fprintf(s.out, "Error: %s\n", err)
}

// sourceCount counts the modules read from source files.
func sourceCount(paths map[string]string) int {
	n := 0
	for _, p := range paths {
		if strings.HasSuffix(p, ".py") {
			n++
		}
	}
	return n
}
