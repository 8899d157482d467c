package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
)

var errExit = errors.New("exit")

func commandShell(ctx context.Context, args []string, out io.Writer) error {
	sess, err := newSession(promptPassword)
	if err != nil {
		return err
	}
	fs, apply := sess.flags("shell")
	if err := fs.Parse(args); err != nil {
		return err
	}
	apply()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "notes> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    shellCompleter(),
	})
	if err != nil {
		return fmt.Errorf("start shell: %w", err)
	}
	defer rl.Close()
	sess.prompt = func(label string) (string, error) {
		secret, err := rl.ReadPassword(label + ": ")
		return string(secret), err
	}

	fmt.Fprintf(out, "connected to %s, type 'help' for commands\n", sess.cfg.APIBaseURL)
	for {
		if ctx.Err() != nil {
			return nil
		}
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
		if err := execShellLine(ctx, sess, line, out); err != nil {
			if errors.Is(err, errExit) {
				return nil
			}
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
}

func execShellLine(ctx context.Context, sess *session, line string, out io.Writer) error {
	args := splitArgs(strings.TrimSpace(line))
	if len(args) == 0 {
		return nil
	}
	switch args[0] {
	case "exit", "quit":
		return errExit
	case "help":
		fmt.Fprintln(out, "commands: users, notes [owner], note get|create|update|delete, whoami, deluser, exit")
		return nil
	}
	return sess.dispatch(ctx, args, out)
}

// splitArgs splits on spaces outside double quotes.
func splitArgs(input string) []string {
	var (
		args     []string
		current  strings.Builder
		inQuotes bool
		pending  bool
	)
	for _, r := range input {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			pending = true
		case r == ' ' && !inQuotes:
			if pending {
				args = append(args, current.String())
				current.Reset()
				pending = false
			}
		default:
			current.WriteRune(r)
			pending = true
		}
	}
	if pending {
		args = append(args, current.String())
	}
	return args
}

func shellCompleter() *readline.PrefixCompleter {
	remote := readline.PcItem("-user")
	return readline.NewPrefixCompleter(
		readline.PcItem("users"),
		readline.PcItem("notes", remote),
		readline.PcItem("note",
			readline.PcItem("get"),
			readline.PcItem("create"),
			readline.PcItem("update"),
			readline.PcItem("delete"),
		),
		readline.PcItem("whoami"),
		readline.PcItem("deluser"),
		readline.PcItem("help"),
		readline.PcItem("exit"),
	)
}
