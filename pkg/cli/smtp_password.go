package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zalando/go-keyring"
)

// NewSMTPPasswordCommand manages the SMTP password kept in the OS keyring.
func NewSMTPPasswordCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "smtp-password",
		Short: "Manage the SMTP password stored in the OS keyring",
	}
	cmd.AddCommand(newSMTPPasswordSetCommand(), newSMTPPasswordDeleteCommand())
	return cmd
}

func newSMTPPasswordSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set USER",
		Short: "Store the SMTP password for USER, read from the first line of stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("reading password from stdin: %w", err)
			}
			secret := strings.TrimRight(line, "\r\n")
			if secret == "" {
				return errors.New("password must not be empty")
			}
			if err := keyring.Set(KeyringService, args[0], secret); err != nil {
				return fmt.Errorf("storing password in keyring: %w", err)
			}
			_, _ = fmt.Fprintf(rt.Writer(), "stored SMTP password for %s\n", args[0])
			return nil
		},
	}
}

func newSMTPPasswordDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete USER",
		Short: "Remove the stored SMTP password for USER",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := keyring.Delete(KeyringService, args[0]); err != nil {
				if errors.Is(err, keyring.ErrNotFound) {
					return fmt.Errorf("no SMTP password stored for %s", args[0])
				}
				return fmt.Errorf("deleting password from keyring: %w", err)
			}
			_, _ = fmt.Fprintf(rt.Writer(), "deleted SMTP password for %s\n", args[0])
			return nil
		},
	}
}
