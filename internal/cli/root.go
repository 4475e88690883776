// Package cli implements the openpgp-card command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/gregLibert/openpgp-card/internal/config"
	"github.com/gregLibert/openpgp-card/pkg/iso7816"
	"github.com/gregLibert/openpgp-card/pkg/openpgp"
	"github.com/gregLibert/openpgp-card/pkg/pcsc"
)

// app carries what the commands share. It is filled in by the root pre-run hook.
type app struct {
	configFile string
	verbose    bool

	connector pcsc.Connector
	stdin     io.Reader
	stderr    io.Writer
	openTTY   func() (io.ReadCloser, error)
	prompter  openpgp.PINPrompter

	// promptOnStdin is set when PINs are read from stdin, which then cannot carry data.
	promptOnStdin bool
	tty           io.Closer

	cfg      *config.Config
	logger   *slog.Logger
	sessions *openpgp.Shared
}

func newApp() *app {
	return &app{
		connector: pcsc.SCard{},
		stdin:     os.Stdin,
		stderr:    os.Stderr,
		openTTY:   openControllingTerminal,
	}
}

// Execute runs the root command until it finishes or the process is interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	return newApp().execute(ctx, os.Args[1:])
}

func (a *app) execute(ctx context.Context, args []string) error {
	root := newRootCommand(a)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if a.sessions != nil {
		if derr := a.sessions.Dispose(); derr != nil {
			a.logger.Warn("failed to release smart card session", "err", derr)
		}
	}
	if a.tty != nil {
		_ = a.tty.Close()
	}
	return err
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "openpgp-card",
		Short: "Decrypt OpenPGP session keys with a smart card",
		Long: `openpgp-card talks to OpenPGP smart cards (YubiKey and others) through PC/SC.

It finds the reader holding the card for a key, verifies the user PIN and
lets the card decrypt an encrypted session key.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.ErrOrStderr())
		},
	}

	root.PersistentFlags().StringVar(&a.configFile, "config", "",
		"config file (YAML)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false,
		"debug logs and APDU trace reports")

	root.AddCommand(newReadersCommand(a))
	root.AddCommand(newStatusCommand(a))
	root.AddCommand(newDecipherCommand(a))
	return root
}

func (a *app) setup(stderr io.Writer) error {
	cfg, err := config.Load(a.configFile)
	if err != nil {
		return err
	}
	if a.verbose {
		cfg.LogLevel = "debug"
	}

	a.cfg = cfg
	a.logger = newLogger(cfg, stderr)
	if a.prompter == nil {
		in := a.promptInput()
		a.prompter = newTerminalPrompter(in, stderr)
	}

	opts := []openpgp.Option{
		openpgp.WithLogger(a.logger),
		openpgp.WithConnectorTimeout(cfg.ConnectorTimeout),
	}
	if a.verbose {
		opts = append(opts, openpgp.WithTraceHook(func(t iso7816.Trace) {
			fmt.Fprintln(stderr, t.Describe())
		}))
	}
	a.sessions = openpgp.NewShared(func() *openpgp.Session {
		return openpgp.NewSession(a.connector, opts...)
	})
	return nil
}
