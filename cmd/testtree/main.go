package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/urfave/cli/v2"

	testtree "github.com/infra-ci/testtree"
	"github.com/infra-ci/testtree/exitcodes"
	"github.com/infra-ci/testtree/flags"
	"github.com/infra-ci/testtree/service"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "testtree"
	app.Usage = "Hierarchical test execution service"
	app.Description = "testtree runs declarative test plans as hierarchical node trees"
	app.Flags = flags.Flags
	app.Action = run
	app.ExitErrHandler = func(c *cli.Context, err error) {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			cli.HandleExitCoder(exitErr)
		} else if err != nil {
			if testtree.IsRuntimeError(err) {
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.RuntimeErr))
			} else {
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.TestFailure))
			}
		}
	}

	// Start telemetry
	otelShutdown, err := otelconfig.ConfigureOpenTelemetry(
		otelconfig.WithServiceName(app.Name),
		otelconfig.WithServiceVersion(app.Version),
	)
	if err != nil {
		log.Crit("Failed to setup open telemetry", "message", err)
	}
	defer otelShutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start server
	svc := service.New()
	svc.Start(ctx)
	defer svc.Shutdown()

	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Crit("Application failed", "message", err)
	}
}

func run(c *cli.Context) error {
	useColor := !c.Bool(flags.NoColor.Name)
	logger := log.NewLogger(log.NewTerminalHandler(os.Stderr, useColor))
	log.SetDefault(logger)

	cfg, err := testtree.NewConfig(c, logger)
	if err != nil {
		return testtree.NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
	}

	cfg.Log.Debug("Config", "config", cfg)

	app, err := testtree.New(cfg, Version)
	if err != nil {
		return testtree.NewRuntimeError(fmt.Errorf("failed to create app: %w", err))
	}

	if err := app.Start(c.Context); err != nil {
		return err
	}
	if cfg.RunOnce {
		return nil
	}

	<-c.Context.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return app.Stop(shutdownCtx)
}
