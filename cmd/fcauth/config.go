// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/fcid/fcauth/oidc"
	"github.com/fcid/fcauth/storage"
	"github.com/hashicorp/go-hclog"
	"github.com/joho/godotenv"
)

const defaultEnvFile = ".env"

// config is read from the environment, overlaid on an optional .env file.
type config struct {
	Authority    string        `env:"FCAUTH_AUTHORITY,required"`
	ClientID     string        `env:"FCAUTH_CLIENT_ID,required"`
	Port         int           `env:"FCAUTH_PORT" envDefault:"8250"`
	Scope        string        `env:"FCAUTH_SCOPE" envDefault:"openid profile email"`
	SQLitePath   string        `env:"FCAUTH_SQLITE_PATH" envDefault:"fcauth.db"`
	RedisURL     string        `env:"FCAUTH_REDIS_URL"`
	ProviderCA   string        `env:"FCAUTH_PROVIDER_CA"`
	LogLevel     string        `env:"FCAUTH_LOG_LEVEL" envDefault:"info"`
	LoginTimeout time.Duration `env:"FCAUTH_LOGIN_TIMEOUT" envDefault:"2m"`
}

// loadConfig parses environ, falling back to the values in envFile for
// variables environ doesn't set.  An empty envFile reads .env from the
// working directory when it exists.
func loadConfig(envFile string, environ []string) (*config, error) {
	const op = "loadConfig"
	vars := env.ToMap(environ)

	path := envFile
	if path == "" {
		path = defaultEnvFile
	}
	fileVars, err := godotenv.Read(path)
	switch {
	case err == nil:
		for k, v := range fileVars {
			if _, ok := vars[k]; !ok {
				vars[k] = v
			}
		}
	case envFile == "" && errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("%s: unable to read %s: %w", op, path, err)
	}

	var c config
	if err := env.ParseWithOptions(&c, env.Options{Environment: vars}); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if c.Port < 1 || c.Port > 65535 {
		return nil, fmt.Errorf("%s: FCAUTH_PORT %d is out of range", op, c.Port)
	}
	if hclog.LevelFromString(c.LogLevel) == hclog.NoLevel {
		return nil, fmt.Errorf("%s: FCAUTH_LOG_LEVEL %q is not a log level", op, c.LogLevel)
	}
	if c.LoginTimeout <= 0 {
		return nil, fmt.Errorf("%s: FCAUTH_LOGIN_TIMEOUT must be positive", op)
	}
	return &c, nil
}

// origin is the callback listener's origin.
func (c *config) origin() string {
	return fmt.Sprintf("http://localhost:%d", c.Port)
}

// oidcConfig builds the session configuration.  The CLI exits between
// commands, so it neither monitors the session nor renews in the background.
func (c *config) oidcConfig(store storage.Store) (*oidc.Config, error) {
	const op = "config.oidcConfig"
	opts := []oidc.Option{
		oidc.WithAuthority(c.Authority),
		oidc.WithScope(c.Scope),
		oidc.WithUserStore(store),
		oidc.WithMonitorSession(false),
		oidc.WithAutomaticSilentRenew(false),
		oidc.WithSupportedSigningAlgs(oidc.RS256, oidc.ES256),
	}
	if c.ProviderCA != "" {
		pem, err := os.ReadFile(c.ProviderCA)
		if err != nil {
			return nil, fmt.Errorf("%s: unable to read provider CA: %w", op, err)
		}
		opts = append(opts, oidc.WithProviderCA(string(pem)))
	}
	oc, err := oidc.NewConfig(c.origin(), c.ClientID, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return oc, nil
}
