package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"quicknotes/internal/domain"

	"github.com/spf13/cobra"
)

type printer struct {
	format string
	out    io.Writer
}

func newPrinter(cmd *cobra.Command, opts *RootOptions) *printer {
	return &printer{format: opts.Format, out: cmd.OutOrStdout()}
}

func (p *printer) notes(notes []domain.Note) error {
	if p.format == "json" {
		return p.json(notes)
	}
	if len(notes) == 0 {
		_, err := fmt.Fprintln(p.out, "No notes yet.")
		return err
	}

	tw := tabwriter.NewWriter(p.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tUPDATED")
	for _, n := range notes {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", n.ID, truncate(n.Title, 40), n.UpdatedAt.Local().Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

func (p *printer) done(format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	if p.format == "json" {
		return p.json(map[string]string{"message": msg})
	}
	_, err := fmt.Fprintln(p.out, msg)
	return err
}

func (p *printer) json(v interface{}) error {
	enc := json.NewEncoder(p.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
