package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/Hussein-Mazeh/genvault/internal/vault"
)

func runInit(args []string) error {
	fs := newFlagSet("init")
	common := addCommonFlags(fs)
	if err := parseFlags(fs, args, 0); err != nil {
		return err
	}

	a, err := openApp(common)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	initialized, err := a.svc.Initialized(ctx)
	if err != nil {
		return err
	}
	if initialized {
		return userError{msg: fmt.Sprintf("vault in %s is already initialised", a.cfg.Dir)}
	}
	if err := a.svc.Unlock(ctx); err != nil {
		return err
	}

	fmt.Printf("vault created in %s\n", a.cfg.Dir)
	return nil
}

func runSave(args []string) error {
	fs := newFlagSet("save")
	common := addCommonFlags(fs)
	var typ string
	fs.StringVarP(&typ, "type", "t", string(vault.EntryPassword), "entry type: password, passphrase or username")
	if err := parseFlags(fs, args, 0); err != nil {
		return err
	}

	entryType, err := vault.ParseEntryType(typ)
	if err != nil {
		return err
	}

	a, err := openApp(common)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	return saveEntry(ctx, a, entryType)
}

func saveEntry(ctx context.Context, a *app, entryType vault.EntryType) error {
	secret, ok, err := a.term.ReadSecret("Secret: ")
	if err != nil {
		return fmt.Errorf("read secret: %w", err)
	}
	if !ok {
		return vault.ErrUserCancelled
	}
	if secret == "" {
		return userError{msg: "secret cannot be empty"}
	}

	confirm, ok, err := a.term.ReadSecret("Confirm: ")
	if err != nil {
		return fmt.Errorf("read confirmation: %w", err)
	}
	if !ok {
		return vault.ErrUserCancelled
	}
	if confirm != secret {
		return userError{msg: "secrets do not match"}
	}

	info, err := a.svc.SaveEntry(ctx, secret, entryType)
	if err != nil {
		return err
	}
	fmt.Printf("stored %s (id=%d)\n", info.Type, info.ID)
	return nil
}

func runReveal(args []string) error {
	fs := newFlagSet("reveal")
	common := addCommonFlags(fs)
	if err := parseFlags(fs, args, 1); err != nil {
		return err
	}
	id, err := parseID(fs.Arg(0))
	if err != nil {
		return err
	}

	a, err := openApp(common)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	return revealEntry(ctx, a, id)
}

func revealEntry(ctx context.Context, a *app, id int64) error {
	plaintext, err := a.svc.RevealEntry(ctx, id)
	if err != nil {
		return err
	}
	fmt.Println(plaintext)
	return nil
}

func runDelete(args []string) error {
	fs := newFlagSet("delete")
	common := addCommonFlags(fs)
	if err := parseFlags(fs, args, 1); err != nil {
		return err
	}
	id, err := parseID(fs.Arg(0))
	if err != nil {
		return err
	}

	a, err := openApp(common)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	return deleteEntry(ctx, a, id)
}

func deleteEntry(ctx context.Context, a *app, id int64) error {
	if err := a.svc.DeleteEntry(ctx, id); err != nil {
		return err
	}
	fmt.Printf("deleted entry %d\n", id)
	return nil
}

func runList(args []string) error {
	fs := newFlagSet("list")
	common := addCommonFlags(fs)
	if err := parseFlags(fs, args, 0); err != nil {
		return err
	}

	a, err := openApp(common)
	if err != nil {
		return err
	}
	defer a.Close()

	return listEntries(context.Background(), a)
}

func listEntries(ctx context.Context, a *app) error {
	entries, err := a.svc.ListEntries(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("vault is empty")
		return nil
	}
	fmt.Printf("%-6s %-11s %s\n", "ID", "TYPE", "CREATED")
	for _, e := range entries {
		fmt.Printf("%-6d %-11s %s\n", e.ID, e.Type, e.CreatedAt.Local().Format(time.DateTime))
	}
	fmt.Printf("%d/%d entries\n", len(entries), vault.MaxEntries)
	return nil
}

func runReset(args []string) error {
	fs := newFlagSet("reset")
	common := addCommonFlags(fs)
	var yes bool
	fs.BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	if err := parseFlags(fs, args, 0); err != nil {
		return err
	}

	a, err := openApp(common)
	if err != nil {
		return err
	}
	defer a.Close()

	return resetVault(context.Background(), a, yes)
}

func resetVault(ctx context.Context, a *app, yes bool) error {
	if !yes {
		ok, err := a.term.Confirm("Delete the master record and every entry? [y/N] ", false)
		if err != nil {
			return fmt.Errorf("read confirmation: %w", err)
		}
		if !ok {
			return vault.ErrUserCancelled
		}
	}
	if err := a.svc.ResetVault(ctx); err != nil {
		return err
	}
	fmt.Println("vault reset")
	return nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, userError{msg: fmt.Sprintf("invalid entry id %q", s)}
	}
	return id, nil
}
