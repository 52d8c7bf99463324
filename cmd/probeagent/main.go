package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/probemux/probemux/agent"
	"github.com/probemux/probemux/multi"
)

func main() {
	// This executable doubles as the probe worker image; worker processes
	// never reach the CLI below.
	multi.MaybeRunWorker()

	app := &cli.App{
		Name:  "probeagent",
		Usage: "drive multiple debug probes over HTTP, one worker process per probe",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "listen-addr",
				Usage: "The address for the HTTP server to listen on.",
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to a TOML config file.",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level. One of [debug,info,warn,error].",
				Value: "info",
			},
		},
		Action: func(ctx *cli.Context) error {
			cfg := agent.DefaultConfig()
			if path := ctx.String("config"); path != "" {
				var err error
				cfg, err = agent.LoadConfig(path)
				if err != nil {
					return err
				}
			}
			if addr := ctx.String("listen-addr"); addr != "" {
				cfg.ListenAddr = addr
			}

			var level zapcore.Level
			if err := level.Set(ctx.String("log-level")); err != nil {
				return fmt.Errorf("parsing log level: %w", err)
			}
			zapCfg := zap.NewDevelopmentConfig()
			zapCfg.Level = zap.NewAtomicLevelAt(level)
			logger, err := zapCfg.Build()
			if err != nil {
				return fmt.Errorf("building logger: %w", err)
			}
			defer logger.Sync()

			a, err := agent.New(cfg, agent.WithLogger(logger))
			if err != nil {
				return fmt.Errorf("building agent: %w", err)
			}
			return a.Run()
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
