package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"

	"github.com/Hussein-Mazeh/genvault/internal/config"
	"github.com/Hussein-Mazeh/genvault/internal/prompt"
	"github.com/Hussein-Mazeh/genvault/internal/service"
)

// commonFlags are accepted by every command that opens the vault.
type commonFlags struct {
	dir     string
	backend string
	config  string
}

func addCommonFlags(fs *flag.FlagSet) *commonFlags {
	c := &commonFlags{}
	fs.StringVarP(&c.dir, "dir", "d", "", "vault directory")
	fs.StringVar(&c.backend, "backend", "", "storage backend: sqlite or bolt")
	fs.StringVarP(&c.config, "config", "c", "", "config file (default <dir>/genvault.toml)")
	return c
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

// parseFlags parses args and checks the positional argument count.
func parseFlags(fs *flag.FlagSet, args []string, positional int) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return userError{msg: fmt.Sprintf("usage of %s:\n%s", fs.Name(), fs.FlagUsages())}
		}
		return userError{msg: fmt.Sprintf("invalid arguments: %v", err)}
	}
	if fs.NArg() != positional {
		return userError{msg: fmt.Sprintf("%s takes %d positional argument(s), got %d", fs.Name(), positional, fs.NArg())}
	}
	return nil
}

func (c *commonFlags) load() (*config.Config, error) {
	path := c.config
	if path == "" && c.dir != "" {
		candidate := filepath.Join(c.dir, config.FileName)
		if _, err := os.Stat(candidate); err == nil {
			path = candidate
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, userError{msg: fmt.Sprintf("load config: %v", err)}
	}
	if c.dir != "" {
		cfg.Dir = c.dir
	}
	if c.backend != "" {
		cfg.Backend = c.backend
	}
	if err := cfg.Validate(); err != nil {
		return nil, userError{msg: fmt.Sprintf("invalid config: %v", err)}
	}
	return cfg, nil
}

func newLogger(level zerolog.Level) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).
		With().Timestamp().
		Logger()
}

// app bundles what a command needs once the vault is open.
type app struct {
	cfg  *config.Config
	log  zerolog.Logger
	term *prompt.Terminal
	svc  *service.Service
}

func openApp(c *commonFlags, promptOpts ...prompt.Option) (*app, error) {
	cfg, err := c.load()
	if err != nil {
		return nil, err
	}
	log := newLogger(cfg.LogLevel)

	store, err := service.OpenStore(cfg.Backend, cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("open vault in %s: %w", cfg.Dir, err)
	}
	log.Debug().Str("dir", cfg.Dir).Str("backend", cfg.Backend).Msg("vault opened")

	promptOpts = append(promptOpts, prompt.WithUserInputs(filepath.Base(cfg.Dir), "genvault"))
	term := prompt.NewTerminal(promptOpts...)

	svc := service.New(store, term,
		service.WithLogger(log),
		service.WithSessionTTL(cfg.SessionTTL),
		service.WithKDFParams(cfg.KDFParams()),
	)
	return &app{cfg: cfg, log: log, term: term, svc: svc}, nil
}

func (a *app) Close() {
	if err := a.svc.Close(); err != nil {
		a.log.Warn().Err(err).Msg("close vault")
	}
}
