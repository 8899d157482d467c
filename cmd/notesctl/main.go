package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/term"
)

var buildVersion = "dev"

var errUsage = errors.New("invalid usage")

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(1)
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			printUsage(os.Stderr)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "adduser":
		return commandAddUser(ctx, rest, out)
	case "authenticate":
		return commandAuthenticate(ctx, rest, out)
	case "shell":
		return commandShell(ctx, rest, out)
	case "version", "--version", "-v":
		fmt.Fprintln(out, strings.TrimSpace(buildVersion))
		return nil
	case "help", "-h", "--help":
		printUsage(out)
		return nil
	}
	if _, ok := remoteCommands[cmd]; ok {
		sess, err := newSession(promptPassword)
		if err != nil {
			return err
		}
		return sess.dispatch(ctx, args, out)
	}
	return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
}

func promptPassword(label string) (string, error) {
	fmt.Fprintf(os.Stderr, "%s: ", label)
	secret, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprint(os.Stderr, "\n")
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(secret), nil
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, "notesctl %s\n\n", buildVersion)
	fmt.Fprint(w, `Usage:
	notesctl adduser -name <user> [-password secret]
	notesctl authenticate -name <user> [-password secret]
	notesctl users [-api url]
	notesctl notes [-user <owner>]
	notesctl note get -id <n>
	notesctl note create -text <text> [-user u] [-password p]
	notesctl note update -id <n> -text <text> [-user u] [-password p]
	notesctl note delete -id <n> [-user u] [-password p]
	notesctl whoami [-user u] [-password p]
	notesctl deluser [-user u] [-password p]
	notesctl shell [-user u] [-password p] [-api url]
	notesctl version

adduser and authenticate talk to the store configured by DB_DRIVER, SQLITE_PATH
and DATABASE_URL. Every other command talks to the API at NOTES_API.
`)
}
