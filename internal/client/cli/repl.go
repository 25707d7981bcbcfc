package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/cipherbox/internal/client/client"
	"github.com/dmitrijs2005/cipherbox/internal/client/transfer"
	"github.com/dmitrijs2005/cipherbox/internal/common"
	"github.com/dmitrijs2005/cipherbox/internal/netx"
)

// printlnFn and printFn are test seams for user-facing output. In tests,
// replace them with stubs.
var printlnFn = fmt.Println
var printFn = fmt.Print

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	Upload(ctx context.Context, path string) error
	Download(ctx context.Context, id string) error
	View(ctx context.Context, id string) error
	List(ctx context.Context, state string) error
	Trash(ctx context.Context, id string) error
	Restore(ctx context.Context, id string) error
	Purge(ctx context.Context, id string) error
	Duplicates(ctx context.Context) error
	Stats(ctx context.Context) error
	Logs(ctx context.Context, args []string) error
	Sweep(ctx context.Context, args []string) error
}

const (
	helpLoggedOut = "Available commands: register, login, sweep [tokens], exit"
	helpLoggedIn  = "Available commands: upload <path>, download <id>, view <id>, (l)ist [trashed], " +
		"trash|delete <id>, restore <id>, purge <id>, dups, stats, logs [-a action] [-s text] [-p page], " +
		"sweep [tokens], logout, exit"
)

// runREPL reads commands from reader until EOF, "exit" or "quit" and
// dispatches them to a. File commands require a login. Command errors are
// printed and the loop continues.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		printFn(fmt.Sprintf("cbx %s> ", statusFn()))
		line, err := reader.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || line == "") {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]
		rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), cmd))

		if needsLogin(cmd) && !a.isLoggedIn() {
			printlnFn("Please log in first")
			continue
		}

		var cerr error
		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn(helpLoggedIn)
			} else {
				printlnFn(helpLoggedOut)
			}
		case "register":
			cerr = a.Register(ctx)
		case "login":
			cerr = a.Login(ctx)
		case "logout":
			cerr = a.Logout(ctx)
		case "upload":
			cerr = a.Upload(ctx, rest)
		case "download":
			cerr = a.Download(ctx, first(args))
		case "view":
			cerr = a.View(ctx, first(args))
		case "l", "list":
			cerr = a.List(ctx, first(args))
		case "trash", "delete":
			cerr = a.Trash(ctx, first(args))
		case "restore":
			cerr = a.Restore(ctx, first(args))
		case "purge":
			cerr = a.Purge(ctx, first(args))
		case "dups":
			cerr = a.Duplicates(ctx)
		case "stats":
			cerr = a.Stats(ctx)
		case "logs":
			cerr = a.Logs(ctx, args)
		case "sweep":
			cerr = a.Sweep(ctx, args)
		case "exit", "quit":
			printlnFn("Bye!")
			return
		default:
			printlnFn("Unknown command:", cmd)
		}

		if cerr != nil {
			printlnFn("Error:", describe(cerr))
		}
	}
}

func first(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func needsLogin(cmd string) bool {
	switch cmd {
	case "help", "register", "login", "sweep", "exit", "quit":
		return false
	}
	return true
}

// describe turns the error taxonomy into messages for people.
func describe(err error) string {
	switch {
	case errors.Is(err, common.ErrAuthenticationFailure):
		return "decryption failed: wrong key or corrupted data"
	case errors.Is(err, transfer.ErrFileChanged):
		return "the file changed while it was being uploaded, nothing was stored"
	case errors.Is(err, common.ErrInvalidState):
		return "the file is not in a state that allows this"
	case errors.Is(err, common.ErrorNotFound):
		return "file not found"
	case errors.Is(err, common.ErrStoreUnavailable):
		return "storage is temporarily unavailable, try again later"
	case errors.Is(err, common.ErrPartialPurge):
		return "file content removed, its record will be cleaned up by the next sweep"
	case errors.Is(err, netx.ErrUnauthorized):
		return "wrong cron secret"
	case errors.Is(err, client.ErrUnauthorized):
		return "not logged in or session expired"
	case errors.Is(err, client.ErrUnavailable):
		return "server unavailable"
	default:
		return err.Error()
	}
}
