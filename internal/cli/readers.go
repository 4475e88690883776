package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gregLibert/openpgp-card/pkg/openpgp"
)

func newReadersCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "readers",
		Short: "List readers and the decryption key of their card",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			session := a.sessions.Get()
			if err := session.EstablishContext(cmd.Context()); err != nil {
				return err
			}

			reports, err := openpgp.NewLocator(session, a.logger).Scan(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(reports) == 0 {
				fmt.Fprintln(out, "no readers found")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "READER\tNAME\tKEY ID")
			for _, r := range reports {
				key := r.KeyID.String()
				if r.Err != nil {
					key = "skipped: " + r.Err.Error()
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", r.Reader, openpgp.ShortReaderName(r.Reader), key)
			}
			return w.Flush()
		},
	}
}
