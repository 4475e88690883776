package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var errNoReaders = errors.New("no readers found")

func newStatusCommand(a *app) *cobra.Command {
	var reader string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the application related data of an OpenPGP card",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			session := a.sessions.Get()
			if err := session.EstablishContext(cmd.Context()); err != nil {
				return err
			}

			if reader == "" {
				readers, err := session.ListReaders()
				if err != nil {
					return err
				}
				if len(readers) == 0 {
					return errNoReaders
				}
				reader = readers[0]
			}

			if err := session.Connect(reader); err != nil {
				return err
			}
			if err := session.SelectApplet(); err != nil {
				return err
			}

			ard, err := session.ReadApplicationData()
			if err != nil {
				return err
			}
			report, err := ard.Report(session.Capabilities())
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Reader: %s\n%s", reader, report)
			return nil
		},
	}

	cmd.Flags().StringVar(&reader, "reader", "", "reader name (default: first reader)")
	return cmd
}
