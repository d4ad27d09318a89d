package cli

import (
	"os"
	"syscall"

	"golang.org/x/term"

	"github.com/verso-wallet/verso/internal/securemem"
	walleterr "github.com/verso-wallet/verso/pkg/errors"
)

const minPasswordLen = 8

// promptPassword prompts for a password with hidden input. The caller
// is responsible for zeroing the returned bytes after use.
func promptPassword(prompt string) ([]byte, error) {
	out(os.Stderr, "%s", prompt)

	password, err := term.ReadPassword(syscall.Stdin)
	outln(os.Stderr) // newline after hidden input

	if err != nil {
		return nil, walleterr.Wrap(err, "reading password")
	}
	return password, nil
}

// promptNewPassword prompts for a new password with confirmation. The
// caller is responsible for zeroing the returned bytes after use.
func promptNewPassword() ([]byte, error) {
	password, err := promptPassword("Enter encryption password: ")
	if err != nil {
		return nil, err
	}

	if len(password) < minPasswordLen {
		securemem.Zero(password)
		return nil, walleterr.WithSuggestion(
			walleterr.ErrValidation,
			"password must be at least 8 characters",
		)
	}

	confirm, err := promptPassword("Confirm password: ")
	if err != nil {
		securemem.Zero(password)
		return nil, err
	}
	defer securemem.Zero(confirm)

	if string(password) != string(confirm) {
		securemem.Zero(password)
		return nil, walleterr.WithSuggestion(
			walleterr.ErrValidation,
			"passwords do not match",
		)
	}

	return password, nil
}
