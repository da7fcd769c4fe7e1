package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"quicknotes/internal/domain"
	"quicknotes/internal/session"

	"github.com/spf13/cobra"
)

var useCases = []string{"personal", "work", "study", "journal", "other"}

type credentials struct {
	username string
	email    string
	password string
}

func NewRegisterCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &credentials{}

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(cmd, opts.password)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, rootOpts)
			if err != nil {
				return err
			}
			defer a.close()

			req := &domain.RegisterRequest{Username: opts.username, Email: opts.email, Password: password}
			if err := a.backend.Register(ctx, req); err != nil {
				return fmt.Errorf("register: %w", err)
			}
			s, err := a.signIn(ctx, opts.email, password)
			if err != nil {
				return err
			}
			return newPrinter(cmd, rootOpts).done("Signed in as %s", displayName(s))
		},
	}

	cmd.Flags().StringVar(&opts.username, "username", "", "username (3-30 letters or digits)")
	cmd.Flags().StringVar(&opts.email, "email", "", "email address")
	cmd.Flags().StringVar(&opts.password, "password", "", "password; read from stdin when omitted")
	cmd.MarkFlagRequired("username")
	cmd.MarkFlagRequired("email")

	return cmd
}

func NewLoginCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &credentials{}

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and remember the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(cmd, opts.password)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, rootOpts)
			if err != nil {
				return err
			}
			defer a.close()

			s, err := a.signIn(ctx, opts.email, password)
			if err != nil {
				return err
			}
			return newPrinter(cmd, rootOpts).done("Signed in as %s", displayName(s))
		},
	}

	cmd.Flags().StringVar(&opts.email, "email", "", "email address")
	cmd.Flags().StringVar(&opts.password, "password", "", "password; read from stdin when omitted")
	cmd.MarkFlagRequired("email")

	return cmd
}

func NewLogoutCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := sessionPath(rootOpts)
			if err != nil {
				return err
			}
			if err := session.Remove(path); err != nil {
				return err
			}
			return newPrinter(cmd, rootOpts).done("Signed out")
		},
	}
}

func NewOnboardCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "onboard <use-case>",
		Short:     "Tell quicknotes what you mostly use it for",
		Long:      "Record what you mostly use quicknotes for: " + strings.Join(useCases, ", ") + ".",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: useCases,
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
			useCase := args[0]
			user, err := a.backend.UpdateProfile(ctx, &domain.UpdateProfileRequest{UseCase: &useCase})
			if err != nil {
				return err
			}

			if s, ok := a.gate.Current(); ok {
				s.User = user
				if err := session.Save(a.sessionPath, s); err != nil {
					return err
				}
			}
			return newPrinter(cmd, rootOpts).done("Use case set to %s", user.UseCase)
		},
	}
}

// readPassword returns flagValue, or the first line of stdin when it is
// empty.
func readPassword(cmd *cobra.Command, flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", errors.New("password is required")
	}
	return password, nil
}

func displayName(s session.Session) string {
	if s.User != nil && s.User.Username != "" {
		return s.User.Username
	}
	return s.OwnerKey
}
