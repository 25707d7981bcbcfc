package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dmitrijs2005/cipherbox/internal/api"
	"github.com/dmitrijs2005/cipherbox/internal/client/client"
	"github.com/dmitrijs2005/cipherbox/internal/client/config"
	"github.com/dmitrijs2005/cipherbox/internal/client/session"
	"github.com/dmitrijs2005/cipherbox/internal/client/transfer"
	"github.com/dmitrijs2005/cipherbox/internal/cryptox"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

// onlineCheckInterval is how often the status watcher pings the server.
const onlineCheckInterval = 30 * time.Second

type uploader interface {
	Upload(ctx context.Context, path string, progress cryptox.ProgressFunc) (*api.FileInfo, error)
}

type downloader interface {
	Download(ctx context.Context, id string, progress cryptox.ProgressFunc) (string, error)
	Preview(ctx context.Context, id string, w io.Writer) (api.FileHeader, error)
}

type App struct {
	config     *config.Config
	client     client.Client
	keys       *session.Keyring
	uploader   uploader
	downloader downloader
	reader     *bufio.Reader
	out        io.Writer

	mu   sync.Mutex
	mode Mode
}

func NewApp(c *config.Config) (*App, error) {
	apiClient, err := client.NewFileVaultClientService(c.ServerEndpointAddr)
	if err != nil {
		return nil, err
	}

	a := &App{
		config: c,
		client: apiClient,
		reader: bufio.NewReader(os.Stdin),
		out:    os.Stdout,
	}
	a.keys = session.NewKeyring(c.IdleTimeout, a.onIdle)
	a.uploader = transfer.NewUploader(apiClient, a.keys)
	a.downloader = transfer.NewDownloader(apiClient, a.keys, c.DownloadDir)

	return a, nil
}

// onIdle runs when the keyring dropped the key after inactivity.
func (a *App) onIdle(account string) {
	a.client.Logout()
	fmt.Fprintf(a.out, "\nSession of %s locked after %s of inactivity, log in again\n", account, a.config.IdleTimeout)
}

func (a *App) setMode(mode Mode) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mode != mode {
		a.mode = mode
		fmt.Fprintf(a.out, "\nSwitched to %s mode\n", mode)
	}
}

func (a *App) getMode() Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mode
}

func (a *App) isLoggedIn() bool {
	return a.keys.Active()
}

func (a *App) getStatus() string {
	s := ""
	if acc := a.keys.Account(); acc != "" {
		s = acc + " "
	}
	if m := a.getMode(); m != "" {
		s = s + string(m)
	}
	if s != "" {
		s = fmt.Sprintf("(%s)", s)
	}
	return s
}

func (a *App) Run(ctx context.Context) {
	defer a.client.Close()
	defer a.keys.Release()

	fmt.Fprintln(a.out, "Welcome to cipherbox CLI (type 'help' for commands)")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go a.StartOnlineStatusWatcher(ctx, onlineCheckInterval)

	runREPL(ctx, a, a.getStatus, a.reader)
}

func (a *App) checkOnline(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	err := a.client.Ping(ctx)
	cancel()

	if err != nil {
		a.setMode(ModeOffline)
	} else {
		a.setMode(ModeOnline)
	}
}

func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	a.checkOnline(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.checkOnline(ctx)
		case <-ctx.Done():
			return
		}
	}
}
