package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/fordlabs/retroquest-notifier/pkg/mail"
)

func NewSendCommand() *cobra.Command {
	var (
		recipients          []string
		subject             string
		message             string
		dryRun              bool
		passwordFromKeyring bool
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send one plain-text notification through the configured transport",
		Long: `Send one notification exactly as the server would. Nothing is sent while
retroquest.email.is-enabled is false. Delivery errors are logged, not returned.
Use --message - to read the body from stdin.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			cfg, err := rt.config(!dryRun)
			if err != nil {
				return err
			}
			log := rt.Logger()

			if message == "-" {
				body, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("reading message from stdin: %w", err)
				}
				message = string(body)
			}
			if passwordFromKeyring && !dryRun {
				if cfg.Mail, err = smtpPasswordFromKeyring(cfg.Mail); err != nil {
					return err
				}
			}

			notifier := mail.NewNotifier(cfg.Notification(), newTransport(cfg.Mail, dryRun, log), log)
			if !notifier.IsEnabled() {
				_, _ = fmt.Fprintln(rt.Writer(), "email is disabled (retroquest.email.is-enabled=false); nothing sent")
				return nil
			}
			notifier.SendUnencryptedNotification(cmd.Context(), subject, message, recipients...)
			_, _ = fmt.Fprintf(rt.Writer(), "dispatched %q to %d recipient(s)\n", subject, len(recipients))
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&recipients, "to", nil, "Recipient address (repeatable or comma separated)")
	cmd.Flags().StringVar(&subject, "subject", "", "Subject line")
	cmd.Flags().StringVar(&message, "message", "", "Plain-text body, or - for stdin")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Log the message instead of contacting the SMTP server")
	cmd.Flags().BoolVar(&passwordFromKeyring, "smtp-password-from-keyring", false,
		"Read the SMTP password for mail.user from the OS keyring")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
