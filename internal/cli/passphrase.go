package cli

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/term"
)

var errNoPassphrase = errors.New("signer passphrase not configured: set signer.passphrase or SCWKEYRING_SIGNER_PASSPHRASE, or run in a terminal")

func readPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr) // newline after password input
	if err != nil {
		return "", err
	}
	return string(password), nil
}

// promptPassphrase asks on the terminal. Outside a terminal it fails.
func promptPassphrase() (string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", errNoPassphrase
	}
	password, err := readPassword("Keyring passphrase: ")
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	if len(password) < 8 {
		return "", fmt.Errorf("passphrase must be at least 8 characters")
	}
	return password, nil
}
