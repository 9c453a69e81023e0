package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fordlabs/retroquest-notifier/pkg/mail"
)

func NewRenderCommand() *cobra.Command {
	var (
		rc      mail.PasswordResetContext
		baseURL string
	)

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Print the password reset message for a team, address and token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("base-url") {
				cfg, err := rt.Config()
				if err != nil {
					return err
				}
				baseURL = cfg.Retroquest.AppBaseURL
			}
			_, err = fmt.Fprint(rt.Writer(), mail.NewComposer(baseURL).RenderPasswordResetMessage(rc))
			return err
		},
	}

	cmd.Flags().StringVar(&rc.TeamName, "team", "", "Team name")
	cmd.Flags().StringVar(&rc.Email, "email", "", "Recipient address")
	cmd.Flags().StringVar(&rc.ResetToken, "token", "", "Reset token")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Override retroquest.app-base-url")
	return cmd
}
