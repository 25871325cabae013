// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// fcauth signs a user in to an OIDC provider from the command line and keeps
// the session in a sqlite or redis store for later commands.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/hashicorp/go-hclog"
	"github.com/jonboulle/clockwork"
)

const usage = `Usage: fcauth [flags] <command>

Commands:
  login    sign in with the provider using a browser
  status   show the current session
  token    print the access token of the current session
  logout   end the session here and at the provider

Configuration is read from FCAUTH_* environment variables and .env.

Flags:
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Environ(), os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, environ []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("fcauth", flag.ContinueOnError)
	flags.SetOutput(stderr)
	envFile := flags.String("env-file", "", "read configuration defaults from this file instead of .env")
	noBrowser := flags.Bool("no-browser", false, "print URLs instead of opening a browser")
	flags.Usage = func() {
		fmt.Fprint(stderr, usage)
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		return 2
	}
	if flags.NArg() != 1 || !isCommand(flags.Arg(0)) {
		flags.Usage()
		return 2
	}

	cfg, err := loadConfig(*envFile, environ)
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return 1
	}
	a := &app{
		cfg: cfg,
		logger: hclog.New(&hclog.LoggerOptions{
			Name:   "fcauth",
			Level:  hclog.LevelFromString(cfg.LogLevel),
			Output: stderr,
		}),
		out:       stdout,
		errOut:    stderr,
		navigator: &browser{out: stderr, disabled: *noBrowser},
		clock:     clockwork.NewRealClock(),
	}
	if err := a.run(ctx, flags.Arg(0)); err != nil {
		if !errors.Is(err, errNotAuthenticated) {
			fmt.Fprintf(stderr, "%s\n", err)
		}
		return 1
	}
	return 0
}
