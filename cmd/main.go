package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"speech-relay/internal/infrastructure/config"
	"speech-relay/internal/infrastructure/logger"
)

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

type rootOptions struct {
	configFile string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:          "speech-relay",
		Short:        "Event relay between transcriber, translator and browser clients",
		SilenceUsage: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configFile, "config", "", "path to a relay.yaml config file")
	pf.String("host", config.DefaultHost, "relay listen host (SIO_HOST)")
	pf.Int("port", config.DefaultPort, "relay listen port (SIO_PORT)")
	pf.String("url", "", "relay URL used by clients (SIO_URL), derived from host and port when empty")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.String("log-format", "console", "log format: console, text, json")

	cmd.AddCommand(
		newServeCommand(opts),
		newListenCommand(opts),
		newDemoCommand(opts),
		newEmitCommand(opts),
		newPipeCommand(opts),
	)
	return cmd
}

// load resolves the configuration for cmd and builds the process logger.
func (o *rootOptions) load(cmd *cobra.Command) (*config.Config, logger.Logger, error) {
	cfg, err := config.Load(o.configFile, cmd.Flags())
	if err != nil {
		return nil, nil, err
	}

	lCfg, lvlErr := logger.NewConfig(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output, cfg.Log.File)
	log := logger.NewLogrusLogger(lCfg)
	if lvlErr != nil {
		log.Warnf("invalid log level, using %s: %v", lCfg.Level, lvlErr)
	}

	return cfg, log.WithField("command", cmd.Name()), nil
}

// WithSignal returns a context cancelled on SIGINT or SIGTERM.
func WithSignal(pctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(pctx)

	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigc)

		select {
		case <-sigc:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx
}
