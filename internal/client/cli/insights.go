package cli

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/cipherbox/internal/api"
	"github.com/dustin/go-humanize"
)

func (a *App) Duplicates(ctx context.Context) error {
	resp, err := a.client.Duplicates(ctx)
	if err != nil {
		return err
	}
	if len(resp.Groups) == 0 {
		fmt.Fprintln(a.out, "No duplicates")
		return nil
	}

	for _, g := range resp.Groups {
		fmt.Fprintf(a.out, "%s... %d copies, %s wasted\n", shortHash(g.ContentHash), len(g.Files), humanize.IBytes(uint64(g.WastedBytes)))
		printFiles(a.out, g.Files, func(f api.FileInfo) string { return f.UploadedAt.Local().Format(time.DateTime) })
	}
	fmt.Fprintf(a.out, "Total reclaimable: %s\n", humanize.IBytes(uint64(resp.WastedBytes)))
	return nil
}

func shortHash(h []byte) string {
	s := hex.EncodeToString(h)
	if len(s) > 12 {
		s = s[:12]
	}
	return s
}

func (a *App) Stats(ctx context.Context) error {
	st, err := a.client.Stats(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "%d files, %s\n", st.Files, humanize.IBytes(uint64(st.TotalBytes)))
	if st.DuplicateBytes > 0 {
		fmt.Fprintf(a.out, "%s reclaimable from duplicates (see dups)\n", humanize.IBytes(uint64(st.DuplicateBytes)))
	}

	if len(st.Categories) > 0 {
		tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "CATEGORY\tFILES\tSIZE")
		for _, c := range st.Categories {
			fmt.Fprintf(tw, "%s\t%d\t%s\n", c.Category, c.Files, humanize.IBytes(uint64(c.TotalBytes)))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	section(a.out, "Large files", st.LargeFiles, func(f api.FileInfo) string { return f.MimeType })
	section(a.out, "Most recently accessed", st.Hottest, func(f api.FileInfo) string { return ago(&f.LastAccessedAt) })
	section(a.out, "Cold files", st.Coldest, func(f api.FileInfo) string { return ago(&f.LastAccessedAt) })
	return nil
}

func section(w io.Writer, title string, files []api.FileInfo, extra func(api.FileInfo) string) {
	if len(files) == 0 {
		return
	}
	fmt.Fprintln(w, title+":")
	printFiles(w, files, extra)
}

// Logs shows the audit trail. Flags: -a action, -s filename search,
// -p page, -n page size.
func (a *App) Logs(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("logs", flag.ContinueOnError)
	fs.SetOutput(a.out)
	req := api.AuditLogRequest{}
	fs.StringVar(&req.Action, "a", "", "action (upload, download, view, delete, restore, permanent_delete, expire)")
	fs.StringVar(&req.Search, "s", "", "filename contains")
	fs.IntVar(&req.Page, "p", 1, "page")
	fs.IntVar(&req.Limit, "n", 20, "entries per page")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	resp, err := a.client.AuditLog(ctx, req)
	if err != nil {
		return err
	}
	if len(resp.Entries) == 0 {
		fmt.Fprintln(a.out, "No entries")
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tACTION\tFILE\tOUTCOME\tIP\tCLIENT")
	for _, e := range resp.Entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", e.Timestamp.Local().Format(time.DateTime), e.Action, e.Filename, e.Outcome, e.IP, e.UserAgent)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "page %d of %d (%d entries)\n", resp.Page, resp.Pages, resp.Total)
	return nil
}
