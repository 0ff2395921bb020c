package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"go.uber.org/zap"
)

const shellHelp = `commands:
  load <orders file>                 insert tuples into the session store
  get <page> <slot>                  print the tuple at a tuple identifier
  stats                              per-page occupancy and utilization
  plan <metadata> [strategy ...]     search join orders (greedy1 greedy2 greedy3 best worst)
  index [tuples] [seed]              compare linear and hash secondary indexes
  help                               show this text
  exit                               leave the shell`

var shellCompleter = readline.NewPrefixCompleter(
	readline.PcItem("load"),
	readline.PcItem("get"),
	readline.PcItem("stats"),
	readline.PcItem("plan"),
	readline.PcItem("index"),
	readline.PcItem("help"),
	readline.PcItem("exit"),
)

// shell reads commands until exit or EOF. The record store persists across
// commands for the life of the shell.
func (a *app) shell(ctx context.Context, stderr io.Writer) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "tuplelab> ",
		HistoryFile:     filepath.Join(userCacheDir(), "tuplelab_history"),
		AutoComplete:    shellCompleter,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdout:          a.out,
		Stderr:          stderr,
	})
	if err != nil {
		return fmt.Errorf("failed to start shell: %w", err)
	}
	defer rl.Close()

	fmt.Fprintln(a.out, "tuplelab shell, type 'help' for commands")
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if done := a.shellLine(ctx, line); done {
			return nil
		}
	}
}

// shellLine executes one line and reports whether the shell should exit.
// Command errors are printed, not returned.
func (a *app) shellLine(ctx context.Context, line string) bool {
	args := strings.Fields(line)
	if len(args) == 0 {
		return false
	}
	switch strings.ToLower(args[0]) {
	case "exit", "quit":
		return true
	case "help":
		fmt.Fprintln(a.out, shellHelp)
		return false
	}
	if err := a.dispatch(ctx, args); err != nil {
		a.logger.Debug("Shell command failed", zap.String("line", line), zap.Error(err))
		fmt.Fprintln(a.out, "error:", err)
	}
	return false
}

func userCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return os.TempDir()
	}
	return dir
}
