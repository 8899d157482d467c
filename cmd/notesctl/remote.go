package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apiclient "github.com/nmiculinic/rzne/pkg/api/client"
)

const requestTimeout = 15 * time.Second

type remoteCommand func(ctx context.Context, s *session, args []string, out io.Writer) error

var remoteCommands map[string]remoteCommand

func init() {
	remoteCommands = map[string]remoteCommand{
		"users":   cmdUsers,
		"notes":   cmdNotes,
		"note":    cmdNote,
		"whoami":  cmdWhoami,
		"deluser": cmdDeleteUser,
	}
}

// session carries connection settings and a cached password across commands.
type session struct {
	cfg      cliConfig
	password string
	prompt   func(label string) (string, error)
	dirty    bool
}

func newSession(prompt func(string) (string, error)) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &session{cfg: cfg, prompt: prompt}, nil
}

func (s *session) dispatch(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return nil
	}
	cmd, ok := remoteCommands[args[0]]
	if !ok {
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}
	if err := cmd(ctx, s, args[1:], out); err != nil {
		return err
	}
	if s.dirty {
		s.dirty = false
		if err := saveConfig(s.cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
	}
	return nil
}

// flags returns a flag set carrying the shared -api/-user/-password options.
func (s *session) flags(name string) (*flag.FlagSet, func()) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	api := fs.String("api", "", "API base URL")
	user := fs.String("user", "", "Username (remembered in config)")
	password := fs.String("password", "", "Password (supply to avoid prompt)")
	return fs, func() {
		if v := strings.TrimSpace(*api); v != "" && v != s.cfg.APIBaseURL {
			s.cfg.APIBaseURL = v
			s.dirty = true
		}
		if v := strings.TrimSpace(*user); v != "" && v != s.cfg.Username {
			s.cfg.Username = v
			s.password = ""
			s.dirty = true
		}
		if *password != "" {
			s.password = *password
		}
	}
}

func (s *session) client() (*apiclient.Client, error) {
	return apiclient.New(s.cfg.APIBaseURL)
}

func (s *session) authedClient() (*apiclient.Client, error) {
	if s.cfg.Username == "" {
		return nil, fmt.Errorf("%w: -user is required", errUsage)
	}
	if s.password == "" {
		secret, err := s.prompt("Password for " + s.cfg.Username)
		if err != nil {
			return nil, err
		}
		s.password = secret
	}
	return apiclient.New(s.cfg.APIBaseURL, apiclient.WithCredentials(s.cfg.Username, s.password))
}

// forget drops a cached password the server rejected.
func (s *session) forget(err error) error {
	if apiclient.IsStatus(err, http.StatusUnauthorized) {
		s.password = ""
	}
	return err
}

func cmdUsers(ctx context.Context, s *session, args []string, out io.Writer) error {
	fs, apply := s.flags("users")
	if err := fs.Parse(args); err != nil {
		return err
	}
	apply()
	cli, err := s.client()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	names, err := cli.ListUsers(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Fprintln(out, name)
	}
	return nil
}

func cmdNotes(ctx context.Context, s *session, args []string, out io.Writer) error {
	fs, apply := s.flags("notes")
	if err := fs.Parse(args); err != nil {
		return err
	}
	apply()
	owner := s.cfg.Username
	if fs.NArg() > 0 {
		owner = fs.Arg(0)
	}
	if owner == "" {
		return fmt.Errorf("%w: -user is required", errUsage)
	}
	cli, err := s.client()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	notes, err := cli.ListNotes(ctx, owner)
	if err != nil {
		return err
	}
	for _, n := range notes {
		fmt.Fprintf(out, "%d\t%s\n", n.ID, n.Text)
	}
	return nil
}

func cmdNote(ctx context.Context, s *session, args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: usage: notesctl note [get|create|update|delete]", errUsage)
	}
	sub := args[0]
	fs, apply := s.flags("note " + sub)
	id := fs.Int64("id", 0, "Note identifier")
	text := fs.String("text", "", "Note text")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	apply()

	needID := sub != "create"
	if needID && *id <= 0 {
		return fmt.Errorf("%w: -id is required", errUsage)
	}
	if (sub == "create" || sub == "update") && *text == "" {
		if fs.NArg() == 0 {
			return fmt.Errorf("%w: -text is required", errUsage)
		}
		*text = strings.Join(fs.Args(), " ")
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	if sub == "get" {
		cli, err := s.client()
		if err != nil {
			return err
		}
		body, err := cli.GetNote(ctx, *id)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, body)
		return nil
	}

	cli, err := s.authedClient()
	if err != nil {
		return err
	}
	switch sub {
	case "create":
		created, err := cli.CreateNote(ctx, *text)
		if err != nil {
			return s.forget(err)
		}
		fmt.Fprintf(out, "note created: %d\n", created)
	case "update":
		created, err := cli.PutNote(ctx, *id, *text)
		if err != nil {
			return s.forget(err)
		}
		if created {
			fmt.Fprintf(out, "note created: %d\n", *id)
		} else {
			fmt.Fprintf(out, "note updated: %d\n", *id)
		}
	case "delete":
		if err := cli.DeleteNote(ctx, *id); err != nil {
			return s.forget(err)
		}
		fmt.Fprintf(out, "note deleted: %d\n", *id)
	default:
		return fmt.Errorf("%w: unknown note command %q", errUsage, sub)
	}
	return nil
}

func cmdWhoami(ctx context.Context, s *session, args []string, out io.Writer) error {
	fs, apply := s.flags("whoami")
	if err := fs.Parse(args); err != nil {
		return err
	}
	apply()
	cli, err := s.authedClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	msg, err := cli.TestAuth(ctx)
	if err != nil {
		return s.forget(err)
	}
	fmt.Fprintln(out, msg)
	return nil
}

func cmdDeleteUser(ctx context.Context, s *session, args []string, out io.Writer) error {
	fs, apply := s.flags("deluser")
	if err := fs.Parse(args); err != nil {
		return err
	}
	apply()
	cli, err := s.authedClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	name := s.cfg.Username
	if err := cli.DeleteUser(ctx, name); err != nil {
		return s.forget(err)
	}
	s.cfg.Username = ""
	s.password = ""
	s.dirty = true
	fmt.Fprintf(out, "user deleted: %s\n", name)
	return nil
}
