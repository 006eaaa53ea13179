package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Hussein-Mazeh/genvault/internal/prompt"
	"github.com/Hussein-Mazeh/genvault/internal/vault"
)

func runSession(args []string) error {
	fs := newFlagSet("session")
	common := addCommonFlags(fs)
	if err := parseFlags(fs, args, 0); err != nil {
		return err
	}

	a, err := openApp(common, prompt.WithRememberQuestion())
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Println("genvault session; type 'help' for commands")
	return sessionLoop(a)
}

// sessionLoop reads commands through the same terminal as the passphrase
// prompts so piped input is consumed in order.
func sessionLoop(a *app) error {
	for {
		line, ok, err := a.term.ReadLine("pm> ")
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		if !ok {
			return nil
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		cmd := fields[0]
		args := fields[1:]

		ctx, cancel := context.WithCancel(context.Background())
		switch cmd {
		case "help":
			printSessionHelp()
		case "unlock":
			err = a.svc.Unlock(ctx)
		case "save":
			err = sessionSave(ctx, a, args)
		case "reveal":
			err = withID(args, func(id int64) error { return revealEntry(ctx, a, id) })
		case "delete":
			err = withID(args, func(id int64) error { return deleteEntry(ctx, a, id) })
		case "list":
			err = listEntries(ctx, a)
		case "lock":
			a.svc.Lock()
			fmt.Println("locked")
		case "status":
			printStatus(ctx, a)
		case "reset":
			err = resetVault(ctx, a, len(args) > 0 && (args[0] == "--yes" || args[0] == "-y"))
		case "exit", "quit":
			cancel()
			return nil
		default:
			fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		}
		cancel()
		handleSessionError(err)
	}
}

func sessionSave(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("save")
	var typ string
	fs.StringVarP(&typ, "type", "t", string(vault.EntryPassword), "entry type")
	if err := parseFlags(fs, args, 0); err != nil {
		return err
	}
	entryType, err := vault.ParseEntryType(typ)
	if err != nil {
		return err
	}
	return saveEntry(ctx, a, entryType)
}

func withID(args []string, fn func(id int64) error) error {
	if len(args) != 1 {
		return userError{msg: "expected exactly one entry id"}
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	return fn(id)
}

func printStatus(ctx context.Context, a *app) {
	initialized, err := a.svc.Initialized(ctx)
	if err != nil {
		handleSessionError(err)
		return
	}
	if !initialized {
		fmt.Println("vault not initialised; 'save' or 'unlock' creates it")
		return
	}
	if expires, ok := a.svc.Unlocked(); ok {
		fmt.Printf("unlocked for %s\n", time.Until(expires).Round(time.Second))
		return
	}
	fmt.Println("locked")
}

func handleSessionError(err error) {
	if err == nil {
		return
	}
	if errors.Is(err, vault.ErrUserCancelled) {
		fmt.Fprintln(os.Stderr, "cancelled")
		return
	}
	if msg, ok := describe(err); ok {
		fmt.Fprintln(os.Stderr, msg)
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
}

func printSessionHelp() {
	fmt.Println("Commands:")
	fmt.Println("  unlock")
	fmt.Println("  save [--type password|passphrase|username]")
	fmt.Println("  reveal <id>")
	fmt.Println("  delete <id>")
	fmt.Println("  list")
	fmt.Println("  lock")
	fmt.Println("  status")
	fmt.Println("  reset [--yes]")
	fmt.Println("  exit | quit")
}
