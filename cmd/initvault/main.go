// Command initvault creates the vault directory and storage file and applies
// schema migrations without creating a master record.
package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/Hussein-Mazeh/genvault/internal/config"
	"github.com/Hussein-Mazeh/genvault/internal/service"
)

func main() {
	var dir, backend, configPath string
	fs := flag.NewFlagSet("initvault", flag.ContinueOnError)
	fs.StringVarP(&dir, "dir", "d", "", "vault directory")
	fs.StringVar(&backend, "backend", "", "storage backend: sqlite or bolt")
	fs.StringVarP(&configPath, "config", "c", "", "config file")
	if err := fs.Parse(os.Args[1:]); err != nil {
		fatal("invalid arguments: %v", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fatal("load config: %v", err)
	}
	if dir != "" {
		cfg.Dir = dir
	}
	if backend != "" {
		cfg.Backend = backend
	}
	if err := cfg.Validate(); err != nil {
		fatal("invalid config: %v", err)
	}

	store, err := service.OpenStore(cfg.Backend, cfg.Dir)
	if err != nil {
		fatal("open vault database: %v", err)
	}
	defer store.Close()

	fmt.Printf("%s storage ready in %s\n", cfg.Backend, cfg.Dir)
}

func fatal(msg string, args ...any) {
	fmt.Fprintf(os.Stderr, msg+"\n", args...)
	os.Exit(1)
}
