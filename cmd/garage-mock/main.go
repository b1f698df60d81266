// Package main runs a simulated garage opener for local development. It
// serves the same JSON protocol as a real endpoint so the console can be
// exercised without hardware.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/universal-console/garage/internal/logging"
	"github.com/universal-console/garage/internal/mockgarage"
)

type serverArgs struct {
	addr    string
	path    string
	target  string
	initial string
	travel  time.Duration
	delay   time.Duration
	token   string
	debug   bool
}

func main() {
	var args serverArgs

	rootCmd := &cobra.Command{
		Use:          "garage-mock",
		Short:        "Simulated garage door opener",
		Long:         "Serves a simulated garage door over HTTP. Status queries report the door position and a toggle command starts it moving.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServer(cmd.Context(), args)
		},
	}

	flags := rootCmd.Flags()
	flags.StringVarP(&args.addr, "addr", "a", ":8080", "listen address")
	flags.StringVar(&args.path, "path", "/garage", "endpoint path")
	flags.StringVarP(&args.target, "target", "t", "Garage", "door name the endpoint answers to")
	flags.StringVar(&args.initial, "initial", string(mockgarage.DoorClosed), "initial door state (Open or Closed)")
	flags.DurationVar(&args.travel, "travel", mockgarage.DefaultTravelTime, "time the door takes to open or close")
	flags.DurationVar(&args.delay, "delay", 0, "artificial delay before every reply")
	flags.StringVar(&args.token, "token", "", "require this bearer token")
	flags.BoolVar(&args.debug, "debug", false, "log every request")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func runServer(ctx context.Context, args serverArgs) error {
	logConfig := logging.DefaultConfig()
	logConfig.Component = "garage-mock"
	if args.debug {
		logConfig.Level = logging.DebugLevel
	}
	logger, err := logging.NewLogger(logConfig)
	if err != nil {
		return err
	}

	initial, err := parseInitial(args.initial)
	if err != nil {
		return err
	}

	door := mockgarage.New(mockgarage.Config{
		Target:     args.target,
		TravelTime: args.travel,
		Initial:    initial,
		Token:      args.token,
		Delay:      args.delay,
	}, logger)

	mux := http.NewServeMux()
	mux.Handle(args.path, door)

	srv := &http.Server{
		Addr:              args.addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Mock garage listening",
			"addr", args.addr,
			"path", args.path,
			"target", args.target,
			"travel", args.travel.String(),
			"auth", args.token != "",
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		logger.Error("Server failed", "error", err.Error())
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("Mock garage stopped", "requests", len(door.Requests()))
	return nil
}

func parseInitial(name string) (mockgarage.DoorState, error) {
	switch strings.ToLower(name) {
	case "closed":
		return mockgarage.DoorClosed, nil
	case "open":
		return mockgarage.DoorOpen, nil
	default:
		return "", fmt.Errorf("initial state must be Open or Closed, got %q", name)
	}
}
