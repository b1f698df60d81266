package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/universal-console/garage/internal/app"
	"github.com/universal-console/garage/internal/content"
	"github.com/universal-console/garage/internal/errors"
	"github.com/universal-console/garage/internal/headless"
	"github.com/universal-console/garage/internal/interfaces"
	"github.com/universal-console/garage/internal/protocol"
	"github.com/universal-console/garage/internal/session"
	"github.com/universal-console/garage/internal/ui/components"
	"github.com/universal-console/garage/internal/ui/garage"
)

// runInteractive opens the terminal interface and blocks until it exits
func runInteractive(cmd *cobra.Command, args *globalArgs) error {
	deps, err := setup(defaultLogPath())
	if err != nil {
		return err
	}

	profile, err := resolveProfile(deps.ConfigManager, args, cmd.Flags().Changed, deps.Env)
	if err != nil {
		return err
	}

	theme, err := deps.ConfigManager.LoadTheme(profile.Theme)
	if err != nil {
		return fmt.Errorf("failed to load theme: %w", err)
	}

	stopMetrics, err := startMetrics(cmd.Context(), args.MetricsAddr, deps)
	if err != nil {
		return err
	}
	defer stopMetrics()

	var rt *app.Runtime
	poster := &garage.ProgramPoster{}
	model := garage.NewModel(garage.Options{
		Profile: profile,
		Theme:   theme,
		Stats:   func() protocol.ConnectionStatistics { return rt.Client.Statistics() },
		Logger:  deps.Logger.WithComponent("ui"),
	})

	rt, err = app.New(app.Options{
		Profile:     profile,
		AuthManager: deps.AuthManager,
		Poster:      poster,
		Display:     model,
		Observer:    deps.Metrics,
		OnTerminate: model.Terminated,
		Logger:      deps.Logger,
	})
	if err != nil {
		return err
	}
	model.Attach(rt.Session)

	deps.Logger.Debug("Creating Bubble Tea program")
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
	poster.Bind(program)

	deps.Logger.Info("Starting TUI application", "profile", profile.Name)
	_, runErr := program.Run()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.DefaultShutdownTimeout)
	defer cancel()
	if err := rt.Shutdown(shutdownCtx); err != nil {
		deps.Logger.Warn("In-flight requests abandoned", "error", err.Error())
	}

	if err := interactiveExitError(runErr); err != nil {
		return err
	}
	deps.Logger.Info("Application shutdown completed successfully")
	return nil
}

// interactiveExitError maps the result of the terminal program to the
// command's result. A signal cancels the command context, which is a
// normal way to leave.
func interactiveExitError(runErr error) error {
	if runErr == nil {
		return nil
	}
	if stderrors.Is(runErr, tea.ErrProgramKilled) &&
		(stderrors.Is(runErr, context.Canceled) || stderrors.Is(runErr, context.DeadlineExceeded)) {
		return nil
	}
	return fmt.Errorf("terminal interface: %w", runErr)
}

func newWatchCommand(args *globalArgs) *cobra.Command {
	var timestamps bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll without the terminal interface",
		Long: "Prints every status change as a line on stdout. Type 't' and Enter to toggle\n" +
			"the door, 's' to refresh, 'q' to quit.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := setup("stderr")
			if err != nil {
				return err
			}

			profile, err := resolveProfile(deps.ConfigManager, args, cmd.Flags().Changed, deps.Env)
			if err != nil {
				return err
			}

			stopMetrics, err := startMetrics(cmd.Context(), args.MetricsAddr, deps)
			if err != nil {
				return err
			}
			defer stopMetrics()

			runner, err := headless.New(headless.Options{
				Profile:     profile,
				AuthManager: deps.AuthManager,
				Observer:    deps.Metrics,
				Input:       cmd.InOrStdin(),
				Output:      cmd.OutOrStdout(),
				Timestamps:  timestamps,
				Logger:      deps.Logger,
			})
			if err != nil {
				return err
			}

			reason, err := runner.Run(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "stopped: %s\n", reason)
			return nil
		},
	}

	cmd.Flags().BoolVar(&timestamps, "timestamps", false, "prefix every line with the time")
	return cmd
}

func newStatusCommand(args *globalArgs) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the door status once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOnce(cmd, args, func(b *session.RequestBuilder) (interfaces.RequestTag, any) {
				return interfaces.TagStatusQuery, b.BuildStatusRequest()
			})
		},
	}
}

func newToggleCommand(args *globalArgs) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle",
		Short: "Send one toggle command",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOnce(cmd, args, func(b *session.RequestBuilder) (interfaces.RequestTag, any) {
				return interfaces.TagCommandSubmit, b.BuildCommandRequest(interfaces.OverrideToggle)
			})
		},
	}
}

// runOnce performs a single blocking exchange and prints the reported status
func runOnce(cmd *cobra.Command, args *globalArgs, build func(*session.RequestBuilder) (interfaces.RequestTag, any)) error {
	deps, err := setup("stderr")
	if err != nil {
		return err
	}

	profile, err := resolveProfile(deps.ConfigManager, args, cmd.Flags().Changed, deps.Env)
	if err != nil {
		return err
	}

	theme, err := deps.ConfigManager.LoadTheme(profile.Theme)
	if err != nil {
		return fmt.Errorf("failed to load theme: %w", err)
	}

	logger := deps.Logger.WithField("profile", profile.Name)
	client, err := protocol.NewClient(profile, deps.AuthManager, protocol.WithLogger(logger.WithComponent("protocol")))
	if err != nil {
		return clientError(profile, err)
	}
	defer client.Close()

	builder := session.NewRequestBuilder(profile.Target, session.NewCacheBustGenerator(nil))
	tag, payload := build(builder)

	resp, err := client.Do(cmd.Context(), tag, payload)
	if err != nil {
		return exchangeError(profile, tag, err)
	}

	return printReply(cmd.OutOrStdout(), profile.Target, tag, resp, components.NewPalette(theme))
}

// clientError reports a client that could not be created. Credential
// rejections already carry their own context and pass through unchanged.
func clientError(profile *interfaces.Profile, err error) error {
	if errors.IsType(err, errors.ErrorTypeAuthentication) {
		return err
	}
	return errors.NewProtocolError("cli").
		WithOperation("new_client").
		WithCode("bad_endpoint").
		WithMessage("failed to create client").
		WithUserMessage("cannot use endpoint '" + profile.URL + "'").
		WithContext("profile", profile.Name).
		WithCause(err).
		WithRecoverable(false).
		WithoutStackTrace().
		Build()
}

// exchangeError reports a failed one-shot exchange. Failures that never got
// a response are network errors and everything else is a protocol error.
func exchangeError(profile *interfaces.Profile, tag interfaces.RequestTag, err error) error {
	var pe *protocol.ProtocolError
	if !stderrors.As(err, &pe) {
		return errors.NewProtocolError("cli").
			WithOperation(tag.String()).
			WithCode("bad_request").
			WithMessage("exchange failed").
			WithUserMessage("could not build the request for '" + profile.URL + "'").
			WithCause(err).
			WithRecoverable(false).
			WithoutStackTrace().
			Build()
	}

	builder := errors.NewProtocolError("cli")
	userMsg := fmt.Sprintf("'%s' rejected the request", profile.URL)
	if pe.Type == "network" {
		builder = errors.NewNetworkError("cli")
		userMsg = "no reply from '" + profile.URL + "'"
		if pe.NetworkDetails != nil {
			builder = builder.WithCode(pe.NetworkDetails.ErrorType)
		}
	} else {
		builder = builder.WithCode(strconv.Itoa(pe.StatusCode()))
	}

	return builder.
		WithOperation(tag.String()).
		WithMessage("exchange failed").
		WithUserMessage(userMsg).
		WithContext("profile", profile.Name).
		WithCause(err).
		WithRecoverable(pe.Recoverable).
		WithoutStackTrace().
		Build()
}

func printReply(w io.Writer, target string, tag interfaces.RequestTag, resp *protocol.Response, palette components.Palette) error {
	status, ok := resp.Status()
	if !ok {
		if tag == interfaces.TagCommandSubmit {
			_, err := fmt.Fprintln(w, "Toggle sent")
			return err
		}
		return fmt.Errorf("reply carried no status field")
	}
	_, err := fmt.Fprintln(w, components.RenderDoorStatus(session.FormatStatus(target, status), palette))
	return err
}

func newConfigCommand(args *globalArgs) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration file",
	}

	var plain bool
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective profile with secrets redacted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := setup("stderr")
			if err != nil {
				return err
			}
			profile, err := resolveProfile(deps.ConfigManager, args, cmd.Flags().Changed, deps.Env)
			if err != nil {
				return err
			}

			var sh *content.SyntaxHighlighter
			if !plain {
				sh = content.NewSyntaxHighlighter("monokai", "terminal256")
			}
			out, err := content.RenderProfile(profile, sh)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	}
	showCmd.Flags().BoolVar(&plain, "plain", false, "disable syntax highlighting")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List profile names",
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := setup("stderr")
			if err != nil {
				return err
			}
			names, err := deps.ConfigManager.ListProfiles()
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}

	pathCmd := &cobra.Command{
		Use:   "path",
		Short: "Print the configuration file location",
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := setup("stderr")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), deps.ConfigManager.GetConfigPath())
			return nil
		},
	}

	configCmd.AddCommand(showCmd, listCmd, pathCmd)
	return configCmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s v%s\n", ProgramName, Version)
			fmt.Fprintf(cmd.OutOrStdout(), "Protocol client: %s\n", protocol.ClientVersion)
			fmt.Fprintf(cmd.OutOrStdout(), "Log file: %s\n", defaultLogPath())
		},
	}
}
