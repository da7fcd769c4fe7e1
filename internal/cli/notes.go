package cli

import (
	"errors"

	"quicknotes/internal/domain"

	"github.com/spf13/cobra"
)

func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List your notes, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, rootOpts)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.resume(ctx); err != nil {
				return err
			}
			if err := a.refresh(ctx); err != nil {
				return err
			}
			return newPrinter(cmd, rootOpts).notes(a.engine.View())
		},
	}
}

func NewAddCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add <title> [body]",
		Short: "Create a note",
		Long: `Create a note. An empty title becomes "Untitled"; a note needs a
title or a body.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			title, body := args[0], ""
			if len(args) == 2 {
				body = args[1]
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, rootOpts)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.resume(ctx); err != nil {
				return err
			}
			note, err := a.engine.Create(title, body)
			if err != nil {
				return err
			}
			if err := a.settle(); err != nil {
				return err
			}
			return newPrinter(cmd, rootOpts).done("Created note %q", note.Title)
		},
	}
}

type editOptions struct {
	title string
	body  string
}

func NewEditCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &editOptions{}

	cmd := &cobra.Command{
		Use:   "edit <id> [--title t] [--body b]",
		Short: "Change a note's title or body",
		Long:  "Change a note's title or body. <id> may be any unique prefix of the note id.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var fields domain.NoteFields
			if cmd.Flags().Changed("title") {
				fields.Title = &opts.title
			}
			if cmd.Flags().Changed("body") {
				fields.Body = &opts.body
			}
			if fields.IsEmpty() {
				return errors.New("nothing to change: pass --title and/or --body")
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, rootOpts)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.resume(ctx); err != nil {
				return err
			}
			if err := a.refresh(ctx); err != nil {
				return err
			}
			id, err := a.resolveID(args[0])
			if err != nil {
				return err
			}
			if err := a.engine.Update(id, fields); err != nil {
				return err
			}
			if err := a.settle(); err != nil {
				return err
			}
			return newPrinter(cmd, rootOpts).done("Updated note %s", id)
		},
	}

	cmd.Flags().StringVar(&opts.title, "title", "", "new title")
	cmd.Flags().StringVar(&opts.body, "body", "", "new body")

	return cmd
}

func NewRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a note",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, rootOpts)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.resume(ctx); err != nil {
				return err
			}
			if err := a.refresh(ctx); err != nil {
				return err
			}
			id, err := a.resolveID(args[0])
			if err != nil {
				return err
			}
			if err := a.engine.Delete(id); err != nil {
				return err
			}
			if err := a.settle(); err != nil {
				return err
			}
			return newPrinter(cmd, rootOpts).done("Deleted note %s", id)
		},
	}
}
