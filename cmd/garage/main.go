// Package main implements the Garage Console entry point.
// This file handles command-line parsing, dependency injection and the
// choice between the terminal interface and the headless and one-shot
// subcommands.
package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/universal-console/garage/internal/auth"
	"github.com/universal-console/garage/internal/config"
	"github.com/universal-console/garage/internal/errors"
	"github.com/universal-console/garage/internal/interfaces"
	"github.com/universal-console/garage/internal/logging"
	"github.com/universal-console/garage/internal/metrics"
)

// Application metadata
const (
	Version     = "1.0.0"
	ProgramName = "Garage Console"
)

// globalArgs are the persistent flags shared by every subcommand
type globalArgs struct {
	Profile     string
	URL         string
	Target      string
	Poll        time.Duration
	Keepalive   time.Duration
	Theme       string
	MetricsAddr string
}

// Dependencies holds all injected application dependencies
type Dependencies struct {
	ConfigManager interfaces.ConfigManager
	AuthManager   *auth.Manager
	Metrics       *metrics.SessionMetrics
	Env           config.EnvOverrides
	Logger        *logging.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", userMessage(err))
		stop()
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	args := &globalArgs{}

	rootCmd := &cobra.Command{
		Use:   "garage",
		Short: "Watch and toggle a garage door",
		Long: "Garage Console polls a garage door endpoint for its status and sends a toggle\n" +
			"command on request. Without a subcommand it opens the terminal interface.",
		Example: "  garage                            # terminal interface with the default profile\n" +
			"  garage --profile home             # use the 'home' profile\n" +
			"  garage --url http://door.lan/api  # connect without a profile\n" +
			"  garage watch --keepalive 2m       # headless, stop after two idle minutes\n" +
			"  garage status                     # print the door status once",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInteractive(cmd, args)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&args.Profile, "profile", "p", "", "profile name from the configuration file")
	flags.StringVar(&args.URL, "url", "", "endpoint URL, overrides the profile")
	flags.StringVar(&args.Target, "target", "", "door name sent with every request")
	flags.DurationVar(&args.Poll, "poll", 0, "poll interval")
	flags.DurationVar(&args.Keepalive, "keepalive", 0, "stop after this long without a toggle (0 polls forever)")
	flags.StringVar(&args.Theme, "theme", "", "visual theme name")
	flags.StringVar(&args.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	rootCmd.AddCommand(
		newWatchCommand(args),
		newStatusCommand(args),
		newToggleCommand(args),
		newConfigCommand(args),
		newVersionCommand(),
	)
	return rootCmd
}

// initializeLogging sets up the global logger. The terminal interface owns
// the screen, so it logs to a file instead of stderr.
func initializeLogging(output string, debug bool) (*logging.Logger, error) {
	logConfig := logging.DefaultConfig()
	logConfig.Level = logging.InfoLevel
	logConfig.Output = output

	if debug {
		logConfig.Level = logging.DebugLevel
		logConfig.Format = "json"
	}

	if err := logging.InitGlobalLogger(logConfig); err != nil {
		return nil, err
	}

	logger := logging.GetGlobalLogger()
	logger.Info("Garage Console starting", "version", Version, "pid", os.Getpid())
	return logger, nil
}

// initializeDependencies creates all application dependencies with proper error handling
func initializeDependencies(logger *logging.Logger, env config.EnvOverrides) (Dependencies, error) {
	logger.Debug("Initializing application components")

	deps := Dependencies{
		Env:    env,
		Logger: logger,
	}

	configManager, err := config.NewManager()
	if err != nil {
		return deps, fmt.Errorf("failed to initialize config manager: %w", err)
	}
	deps.ConfigManager = configManager

	deps.AuthManager = auth.NewManager(nil)
	deps.Metrics = metrics.NewSessionMetrics()

	logger.Info("Application components initialized successfully")
	return deps, nil
}

// setup reads the environment, starts logging to output and builds the
// dependencies every subcommand needs
func setup(output string) (Dependencies, error) {
	env, err := config.ParseEnv()
	if err != nil {
		return Dependencies{}, errors.NewConfigurationError("cli").
			WithOperation("parse_env").
			WithMessage("invalid environment").
			WithCause(err).
			WithoutStackTrace().
			Build()
	}

	logger, err := initializeLogging(output, env.Debug)
	if err != nil {
		return Dependencies{}, err
	}
	return initializeDependencies(logger, env)
}

// startMetrics serves deps.Metrics on addr until the returned stop function
// is called. An empty addr disables the server.
func startMetrics(ctx context.Context, addr string, deps Dependencies) (func(), error) {
	if addr == "" {
		return func() {}, nil
	}

	srv, err := metrics.Listen(addr, deps.Metrics, deps.Logger)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Serve(ctx); err != nil {
			deps.Logger.Warn("Metrics server stopped", "error", err.Error())
		}
	}()

	return func() {
		cancel()
		<-done
	}, nil
}

// defaultLogPath is where the terminal interface writes its log
func defaultLogPath() string {
	stateHome := os.Getenv("XDG_STATE_HOME")
	if stateHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(os.TempDir(), "garage.log")
		}
		stateHome = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(stateHome, "garage", "garage.log")
}

// userMessage prefers the short message of a contextual error
func userMessage(err error) string {
	var ce *errors.ContextualError
	if !stderrors.As(err, &ce) {
		return err.Error()
	}

	msg := ce.GetUserMessage()
	if ce.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, ce.Cause)
	}
	transient := ce.Type == errors.ErrorTypeNetwork || ce.Type == errors.ErrorTypeProtocol
	if transient && ce.IsRecoverable() {
		msg += " (this may be temporary, try again)"
	}
	return msg
}
