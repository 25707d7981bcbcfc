package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/dmitrijs2005/cipherbox/internal/common"
	"github.com/dmitrijs2005/cipherbox/internal/cryptox"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

// verifierFor derives the login verifier without keeping the key.
func verifierFor(password []byte, userName string) ([]byte, error) {
	key, err := cryptox.DeriveKey(string(password), userName)
	if err != nil {
		return nil, err
	}
	defer key.Wipe()
	return key.AuthVerifier()
}

func (a *App) readCredentials() (string, []byte, error) {
	userName, err := getSimpleText(a.reader, "Enter user name", a.out)
	if err != nil {
		return "", nil, err
	}
	password, err := getPassword(a.out)
	if err != nil {
		return "", nil, err
	}
	return userName, password, nil
}

// Register creates an account. The password never leaves the client; the
// server only stores a verifier derived from the session key.
func (a *App) Register(ctx context.Context) error {
	userName, password, err := a.readCredentials()
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	verifier, err := verifierFor(password, userName)
	if err != nil {
		return err
	}

	if err := a.client.Register(ctx, userName, verifier); err != nil {
		return err
	}

	fmt.Fprintln(a.out, "Success! You can log in now.")
	return nil
}

// Login derives the session key, proves it to the server and keeps the key
// in the keyring until logout or idle timeout.
func (a *App) Login(ctx context.Context) error {
	userName, password, err := a.readCredentials()
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	verifier, err := a.keys.Acquire(string(password), userName)
	if err != nil {
		return err
	}

	if err := a.client.Login(ctx, userName, verifier); err != nil {
		a.keys.Release()
		return err
	}

	fmt.Fprintln(a.out, "Login successful")
	return nil
}

// Logout wipes the session key and forgets the server tokens.
func (a *App) Logout(ctx context.Context) error {
	a.client.Logout()
	a.keys.Release()
	fmt.Fprintln(a.out, "Logged out")
	return nil
}

func progressPrinter(w io.Writer, label string) cryptox.ProgressFunc {
	return func(p int) {
		fmt.Fprintf(w, "\r%s %3d%%", label, p)
		if p == 100 {
			fmt.Fprintln(w)
		}
	}
}
