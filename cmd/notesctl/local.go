package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/nmiculinic/rzne/internal/app/store"
	"github.com/nmiculinic/rzne/internal/service/auth"
	"github.com/nmiculinic/rzne/pkg/config"
	"github.com/nmiculinic/rzne/pkg/crypto"
	"github.com/nmiculinic/rzne/pkg/logger"
)

type localCredentials struct {
	name     string
	password string
}

func parseLocalFlags(cmd string, args []string) (localCredentials, error) {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	name := fs.String("name", "", "Username")
	password := fs.String("password", "", "Password (supply to avoid prompt)")
	if err := fs.Parse(args); err != nil {
		return localCredentials{}, err
	}
	creds := localCredentials{name: strings.TrimSpace(*name), password: *password}
	if creds.name == "" && fs.NArg() > 0 {
		creds.name = fs.Arg(0)
	}
	if creds.name == "" {
		return localCredentials{}, fmt.Errorf("%w: -name is required", errUsage)
	}
	if creds.password == "" {
		secret, err := promptPassword("Password for " + creds.name)
		if err != nil {
			return localCredentials{}, err
		}
		creds.password = secret
	}
	return creds, nil
}

// withLocalAuth opens the configured store and hands an auth service to fn.
func withLocalAuth(ctx context.Context, fn func(auth.Service) error) error {
	cfg := config.LoadAPIConfig()
	if err := cfg.Validate(); err != nil {
		return err
	}
	log := logger.NewTo(os.Stderr, "notesctl", logger.ParseLevel(config.GetString("LOG_LEVEL", "warn")))
	repo, closeStore, err := store.Open(ctx, cfg, true, log)
	if err != nil {
		return err
	}
	defer closeStore()
	return fn(auth.New(repo, crypto.NewHasher(cfg.HashIterations, cfg.SaltBytes), log))
}

func commandAddUser(ctx context.Context, args []string, out io.Writer) error {
	creds, err := parseLocalFlags("adduser", args)
	if err != nil {
		return err
	}
	return withLocalAuth(ctx, func(svc auth.Service) error {
		user, err := svc.Register(ctx, creds.name, creds.password)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "user created: %s (id %d)\n", user.Name, user.ID)
		return nil
	})
}

func commandAuthenticate(ctx context.Context, args []string, out io.Writer) error {
	creds, err := parseLocalFlags("authenticate", args)
	if err != nil {
		return err
	}
	return withLocalAuth(ctx, func(svc auth.Service) error {
		identity, err := svc.Authenticate(ctx, creds.name, creds.password)
		if errors.Is(err, auth.ErrUnauthenticated) {
			return errors.New("authentication failed")
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "authenticated: %s (id %d)\n", identity.Name, identity.UserID)
		return nil
	})
}
