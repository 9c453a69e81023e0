package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fordlabs/retroquest-notifier/pkg/config"
	"github.com/fordlabs/retroquest-notifier/pkg/system"
)

// DefaultEnvFile is loaded when present; --env-file makes a file mandatory.
const DefaultEnvFile = ".env"

// Config seeds the root command. Zero values fall back to the environment.
type Config struct {
	ConfigPath   string
	EnvFile      string
	OutputWriter io.Writer
	// Logger replaces the logger NewRootCommand would build.
	Logger *zap.Logger
}

type runtimeState struct {
	configPath string
	envFile    string
	debug      bool
	writer     io.Writer
	log        *zap.Logger

	cfg *config.Config
}

type runtimeKey struct{}

// DefaultConfig returns the seed used by the binary.
func DefaultConfig() Config {
	return Config{
		ConfigPath:   os.Getenv(config.ConfigPathEnv),
		EnvFile:      getEnvString(envEnvFile, ""),
		OutputWriter: os.Stdout,
	}
}

// NewRootCommand builds the command tree.
func NewRootCommand(cfg Config) *cobra.Command {
	rt := &runtimeState{
		configPath: cfg.ConfigPath,
		envFile:    cfg.EnvFile,
		writer:     cfg.OutputWriter,
		log:        cfg.Logger,
		debug:      getEnvBool(envDebug, false),
	}

	root := &cobra.Command{
		Use:           "retroquest-notifier",
		Short:         "RetroQuest email notifications and password reset links",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if rt.writer == nil {
				rt.writer = os.Stdout
			}
			if err := rt.loadEnvFile(); err != nil {
				return err
			}
			if rt.log == nil {
				logger, err := system.NewLogger(rt.debug)
				if err != nil {
					return err
				}
				rt.log = logger
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&rt.configPath, "config", rt.configPath,
		"Path to config file (default $"+config.ConfigPathEnv+" or "+config.DefaultConfigPath+")")
	root.PersistentFlags().StringVar(&rt.envFile, "env-file", rt.envFile,
		"Load environment variables from this file before reading config (default "+DefaultEnvFile+" if present)")
	root.PersistentFlags().BoolVar(&rt.debug, "debug", rt.debug, "Enable debug logging and CORS for allowed origins")

	root.SetContext(context.WithValue(context.Background(), runtimeKey{}, rt))

	root.AddCommand(
		NewServeCommand(),
		NewSendCommand(),
		NewRenderCommand(),
		NewSMTPPasswordCommand(),
		NewCompletionCommand(),
		NewVersionCommand(),
	)
	return root
}

func getRuntime(cmd *cobra.Command) (*runtimeState, error) {
	rt, ok := cmd.Context().Value(runtimeKey{}).(*runtimeState)
	if !ok || rt == nil {
		return nil, errors.New("runtime not initialized")
	}
	return rt, nil
}

// loadEnvFile does not override variables already set in the process.
func (rt *runtimeState) loadEnvFile() error {
	if rt.envFile != "" {
		if err := godotenv.Load(rt.envFile); err != nil {
			return fmt.Errorf("loading env file %s: %w", rt.envFile, err)
		}
		return nil
	}
	if _, err := os.Stat(DefaultEnvFile); err == nil {
		if err := godotenv.Load(DefaultEnvFile); err != nil {
			return fmt.Errorf("loading env file %s: %w", DefaultEnvFile, err)
		}
	}
	return nil
}

// Config loads and defaults the configuration once per process and
// validates it for a run that talks to the mail server.
func (rt *runtimeState) Config() (config.Config, error) {
	return rt.config(true)
}

func (rt *runtimeState) config(requireSMTP bool) (config.Config, error) {
	if rt.cfg == nil {
		cfg, err := config.Load(rt.configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg.Defaults()
		rt.cfg = &cfg
	}
	validate := rt.cfg.Validate
	if !requireSMTP {
		validate = rt.cfg.ValidateWithoutSMTP
	}
	if err := validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return *rt.cfg, nil
}

func (rt *runtimeState) Writer() io.Writer {
	if rt.writer == nil {
		return os.Stdout
	}
	return rt.writer
}

func (rt *runtimeState) Logger() *zap.SugaredLogger {
	if rt.log == nil {
		return zap.NewNop().Sugar()
	}
	return rt.log.Sugar()
}
