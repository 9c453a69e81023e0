package cli

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fordlabs/retroquest-notifier/pkg/api"
	"github.com/fordlabs/retroquest-notifier/pkg/audit"
	"github.com/fordlabs/retroquest-notifier/pkg/mail"
	"github.com/fordlabs/retroquest-notifier/pkg/password"
	"github.com/fordlabs/retroquest-notifier/pkg/version"
)

func NewServeCommand() *cobra.Command {
	var passwordFromKeyring bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the password reset API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, rt, passwordFromKeyring)
		},
	}
	cmd.Flags().BoolVar(&passwordFromKeyring, "smtp-password-from-keyring", false,
		"Read the SMTP password for mail.user from the OS keyring")
	return cmd
}

func runServe(ctx context.Context, rt *runtimeState, passwordFromKeyring bool) error {
	log := rt.Logger()
	cfg, err := rt.Config()
	if err != nil {
		return err
	}
	log.Infow("Starting retroquest-notifier", "version", version.Version)
	if rt.debug {
		printConfig(log, cfg)
	}

	if passwordFromKeyring {
		if cfg.Mail, err = smtpPasswordFromKeyring(cfg.Mail); err != nil {
			return err
		}
	}

	ttl, err := cfg.ResetTTL()
	if err != nil {
		return err
	}
	store, err := password.NewStore(cfg.PasswordReset, ttl)
	if err != nil {
		return err
	}
	if c, ok := store.(io.Closer); ok {
		defer func() { _ = c.Close() }()
	}
	issuer, err := password.NewIssuer([]byte(cfg.PasswordReset.SigningKey), ttl, store)
	if err != nil {
		return err
	}
	warnResetTTLMismatch(log, issuer.TTL())

	manager, err := newAuditManager(cfg.Audit, rt.log)
	if err != nil {
		return err
	}
	var auditor audit.Emitter
	var opts []mail.Option
	if manager != nil {
		defer func() {
			if err := manager.Close(); err != nil {
				log.Warnw("Closing audit sink failed", "error", err.Error())
			}
		}()
		auditor = manager
		opts = append(opts, mail.WithAuditor(manager))
	}

	notifier := mail.NewNotifier(cfg.Notification(), newTransport(cfg.Mail, false, log), log, opts...)
	if !notifier.IsEnabled() {
		log.Warnw("Email is disabled; reset requests will be accepted but no mail is sent",
			"key", "retroquest.email.is-enabled")
	}

	server, err := api.NewServer(rt.log, cfg.Server, rt.debug)
	if err != nil {
		return err
	}
	controllers := []api.APIController{
		api.NewPasswordController(log, issuer, notifier, auditor, cfg.PasswordReset.RequestsPerMinute),
	}
	if err := server.RegisterAll(controllers); err != nil {
		return fmt.Errorf("registering API controllers: %w", err)
	}

	return server.Listen(ctx)
}

// warnResetTTLMismatch flags a token lifetime that contradicts the fixed
// validity notice in the reset message.
func warnResetTTLMismatch(log *zap.SugaredLogger, ttl time.Duration) {
	if ttl == mail.PasswordResetLinkValidity {
		return
	}
	log.Warnw("Password reset token TTL differs from the validity stated in the reset email",
		"ttl", ttl.String(), "stated", mail.PasswordResetLinkValidity.String())
}
