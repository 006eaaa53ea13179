package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/awnumar/memguard"

	"github.com/Hussein-Mazeh/genvault/internal/prompt"
	"github.com/Hussein-Mazeh/genvault/internal/vault"
)

const cliVersion = "0.2.0"

type userError struct {
	msg string
}

func (e userError) Error() string { return e.msg }

func main() {
	// Purge key enclaves on Ctrl-C instead of leaving them to the OS.
	memguard.CatchInterrupt()

	if len(os.Args) < 2 {
		printUsage()
		memguard.SafeExit(1)
	}

	var err error
	switch os.Args[1] {
	case "version":
		fmt.Println(cliVersion)
	case "init":
		err = runInit(os.Args[2:])
	case "save":
		err = runSave(os.Args[2:])
	case "reveal":
		err = runReveal(os.Args[2:])
	case "delete":
		err = runDelete(os.Args[2:])
	case "list":
		err = runList(os.Args[2:])
	case "reset":
		err = runReset(os.Args[2:])
	case "session":
		err = runSession(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		printUsage()
		memguard.SafeExit(1)
	}
	handleError(err)
	memguard.Purge()
}

func handleError(err error) {
	if err == nil {
		return
	}

	if msg, ok := describe(err); ok {
		fmt.Fprintln(os.Stderr, msg)
		memguard.SafeExit(1)
	}

	fmt.Fprintf(os.Stderr, "unexpected error: %v\n", err)
	memguard.SafeExit(2)
}

// describe turns expected failures into the message shown to the user.
// Cryptographic failures share one message so the user cannot tell a wrong
// passphrase from tampered data.
func describe(err error) (string, bool) {
	var uerr userError
	switch {
	case errors.As(err, &uerr):
		return uerr.Error(), true
	case errors.Is(err, vault.ErrIncorrectPassword), errors.Is(err, vault.ErrDecryptionFailed):
		return "incorrect password or corrupted data", true
	case errors.Is(err, vault.ErrVaultCorrupted):
		return "vault data is corrupted; 'pm reset' starts over and deletes every entry", true
	case errors.Is(err, vault.ErrUserCancelled):
		return "cancelled", true
	case errors.Is(err, vault.ErrEmptyPassphrase):
		return "passphrase must not be empty", true
	case errors.Is(err, prompt.ErrMismatch):
		return "passphrases do not match", true
	case errors.Is(err, vault.ErrEntryNotFound):
		return "no such entry", true
	case errors.Is(err, vault.ErrInvalidEntryType):
		return "entry type must be password, passphrase or username", true
	case errors.Is(err, vault.ErrStorageUnavailable):
		return fmt.Sprintf("vault storage unavailable: %v", err), true
	}
	return "", false
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage: pm <command> [--dir <vault-dir>] [--backend sqlite|bolt] [--config <file>]")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  version")
	fmt.Fprintln(os.Stderr, "  init")
	fmt.Fprintln(os.Stderr, "  save [--type password|passphrase|username]")
	fmt.Fprintln(os.Stderr, "  reveal <id>")
	fmt.Fprintln(os.Stderr, "  delete <id>")
	fmt.Fprintln(os.Stderr, "  list")
	fmt.Fprintln(os.Stderr, "  reset [--yes]")
	fmt.Fprintln(os.Stderr, "  session")
}
