// Command adduser creates an account, or resets its password with -reset, and
// prints a one time password the user has to change after logging in.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/liondadev/quick-file-share/config"
	"github.com/liondadev/quick-file-share/credential"
	"github.com/liondadev/quick-file-share/store"
	"github.com/liondadev/quick-file-share/types"
)

func main() {
	configPath := flag.String("config", "config.json", "path to a json config file, skipped if it doesn't exist")
	reset := flag.Bool("reset", false, "reset the password of an existing user instead of creating one")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-config config.json] [-reset] <username>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(context.Background(), *configPath, flag.Arg(0), *reset); err != nil {
		slog.Error("adduser failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath, username string, reset bool) error {
	cfg, err := config.Load(configPath, os.LookupEnv)
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()

	otp, err := credential.OneTimePassword()
	if err != nil {
		return err
	}
	hash, err := credential.Bcrypt{}.Hash(otp)
	if err != nil {
		return err
	}

	if reset {
		u, err := st.UserByUsername(ctx, username)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("no user named %q", username)
		}
		if err != nil {
			return err
		}
		if err := st.SetUserPassword(ctx, u.Id, hash, true); err != nil {
			return err
		}
	} else {
		u := &types.User{Username: username, HashedPassword: hash, IsActive: true, MustChangePassword: true}
		if err := st.CreateUser(ctx, u); err != nil {
			return err
		}
	}

	fmt.Printf("one time password for %s: %s\n", username, otp)
	return nil
}
