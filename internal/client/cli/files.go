package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/cipherbox/internal/api"
	"github.com/dmitrijs2005/cipherbox/internal/common"
	"github.com/dustin/go-humanize"
)

// now is a test seam for relative times in listings.
var now = time.Now

func (a *App) Upload(ctx context.Context, path string) error {
	if path == "" {
		return fmt.Errorf("%w: usage: upload <path>", common.ErrInvalidInput)
	}

	f, err := a.uploader.Upload(ctx, path, progressPrinter(a.out, "encrypting"))
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Uploaded %s (%s) as %s\n", f.Filename, humanize.IBytes(uint64(f.Size)), f.ID)
	return nil
}

func (a *App) Download(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: usage: download <id>", common.ErrInvalidInput)
	}

	path, err := a.downloader.Download(ctx, id, progressPrinter(a.out, "decrypting"))
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Saved to %s\n", path)
	return nil
}

// View prints a small text file without saving it.
func (a *App) View(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: usage: view <id>", common.ErrInvalidInput)
	}

	var sb strings.Builder
	h, err := a.downloader.Preview(ctx, id, &sb)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(h.MimeType, "text/") {
		fmt.Fprintf(a.out, "%s is %s, use download instead\n", h.Filename, h.MimeType)
		return nil
	}

	fmt.Fprintf(a.out, "--- %s ---\n%s\n", h.Filename, sb.String())
	return nil
}

func (a *App) List(ctx context.Context, state string) error {
	files, err := a.client.ListFiles(ctx, state)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Fprintln(a.out, "No files")
		return nil
	}

	trashed := state == "trashed"
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	if trashed {
		fmt.Fprintln(tw, "ID\tNAME\tSIZE\tTRASHED\tPURGED")
	} else {
		fmt.Fprintln(tw, "ID\tNAME\tTYPE\tSIZE\tUPLOADED\tLAST ACCESS")
	}
	for _, f := range files {
		if trashed {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", f.ID, f.Filename, humanize.IBytes(uint64(f.Size)), ago(f.TrashedAt), purgeETA(f.TrashedAt))
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", f.ID, f.Filename, f.MimeType, humanize.IBytes(uint64(f.Size)),
			f.UploadedAt.Local().Format(time.DateTime), humanize.RelTime(f.LastAccessedAt, now(), "ago", "from now"))
	}
	return tw.Flush()
}

func ago(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return humanize.RelTime(*t, now(), "ago", "from now")
}

// purgeETA is when the sweep will remove a trashed file under the default
// retention window.
func purgeETA(trashedAt *time.Time) string {
	if trashedAt == nil {
		return "-"
	}
	due := trashedAt.Add(common.RetentionWindow)
	if !due.After(now()) {
		return "next sweep"
	}
	return humanize.RelTime(due, now(), "ago", "from now")
}

func (a *App) Trash(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: usage: trash <id>", common.ErrInvalidInput)
	}
	f, err := a.client.Trash(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Moved %s to trash, it will be purged %s\n", f.Filename, purgeETA(f.TrashedAt))
	return nil
}

func (a *App) Restore(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: usage: restore <id>", common.ErrInvalidInput)
	}
	f, err := a.client.Restore(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Restored %s\n", f.Filename)
	return nil
}

// Purge removes a file for good after confirmation.
func (a *App) Purge(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: usage: purge <id>", common.ErrInvalidInput)
	}
	ok, err := confirm(a.reader, fmt.Sprintf("Permanently delete %s? This cannot be undone", id), a.out)
	if err != nil || !ok {
		return err
	}
	if err := a.client.Purge(ctx, id); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Purged")
	return nil
}

var confirm = Confirm

func printFiles(w io.Writer, files []api.FileInfo, extra func(api.FileInfo) string) {
	for _, f := range files {
		fmt.Fprintf(w, "  %s  %-30s %10s  %s\n", f.ID, f.Filename, humanize.IBytes(uint64(f.Size)), extra(f))
	}
}
