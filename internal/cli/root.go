// Package cli implements notesctl, the terminal client of the quicknotes
// store server.
package cli

import (
	goflag "flag"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Embedded    bool
	SessionPath string
	Format      string // "json" | "text"
}

var ValidFormats = []string{"text", "json"}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "notesctl",
		Short: "Quick notes from the terminal",
		Long: `notesctl keeps a local view of your notes in step with the quicknotes
store server. Changes show up immediately and are sent in the background;
a change the server refuses is reported and, where it makes sense, undone.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	addGlobalFlags(cmd.PersistentFlags(), opts)

	cmd.AddCommand(NewRegisterCommand(opts))
	cmd.AddCommand(NewLoginCommand(opts))
	cmd.AddCommand(NewLogoutCommand(opts))
	cmd.AddCommand(NewOnboardCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewAddCommand(opts))
	cmd.AddCommand(NewEditCommand(opts))
	cmd.AddCommand(NewRemoveCommand(opts))
	cmd.AddCommand(NewUICommand(opts))

	return cmd
}

// addGlobalFlags registers the notesctl flags along with glog's (-v,
// --logtostderr, ...).
func addGlobalFlags(fs *pflag.FlagSet, opts *RootOptions) {
	fs.BoolVar(&opts.Embedded, "embedded", false, "use the configured database directly instead of the store server")
	fs.StringVar(&opts.SessionPath, "session", "", "session file (default: <user config dir>/quicknotes/session.json)")
	fs.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	fs.AddGoFlagSet(goflag.CommandLine)
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
