package cli

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gregLibert/openpgp-card/pkg/openpgp"
	"github.com/gregLibert/openpgp-card/pkg/pincache"
)

var errStdinConflict = errors.New("stdin carries the encrypted session key and no terminal is available for the PIN prompt; use --in FILE")

func newDecipherCommand(a *app) *cobra.Command {
	var (
		keyIDHex string
		inputs   []string
		hexInput bool
	)

	cmd := &cobra.Command{
		Use:   "decipher",
		Short: "Decrypt encrypted session keys on the card holding a key",
		Long: `decipher reads encrypted session key MPIs (two-byte bit count followed by the
key material, as found in an OpenPGP public-key encrypted session key packet),
lets the card holding --key-id decrypt them and prints the session keys.

Several --in values are processed in order; a PIN remembered for the first one
is reused for the next.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			keyID, err := openpgp.ParseKeyID(keyIDHex)
			if err != nil {
				return err
			}
			if a.promptOnStdin && slices.Contains(inputs, "-") {
				return errStdinConflict
			}

			cache := pincache.New(a.cfg.PINCacheIdle, a.logger)
			defer cache.Close()

			d := openpgp.NewDecrypter(a.sessions.Get(), cache, a.prompter, a.cfg.MaxPINAttempts, a.logger)

			for _, in := range inputs {
				esk, err := readInput(in, a.stdin, hexInput)
				if err != nil {
					return err
				}

				plain, err := d.DecipherSessionKey(cmd.Context(), esk, keyID)
				if err != nil {
					return err
				}
				key, err := openpgp.ParseSessionKey(plain)
				if err != nil {
					return fmt.Errorf("%s: %w", in, err)
				}

				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s %s\n",
					in, key.AlgorithmName(), strings.ToUpper(hex.EncodeToString(key.Key)))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&keyIDHex, "key-id", "", "decryption key ID (16 hex digits)")
	cmd.Flags().StringSliceVar(&inputs, "in", []string{"-"}, "encrypted session key file, - for stdin")
	cmd.Flags().BoolVar(&hexInput, "hex", false, "input is hex text instead of binary")
	_ = cmd.MarkFlagRequired("key-id")
	return cmd
}

// readInput loads one encrypted session key from a file or, for "-", from stdin.
func readInput(name string, stdin io.Reader, hexInput bool) ([]byte, error) {
	var (
		raw []byte
		err error
	)
	if name == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(name)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}

	if hexInput {
		raw, err = hex.DecodeString(strings.Join(strings.Fields(string(raw)), ""))
		if err != nil {
			return nil, fmt.Errorf("%s: %w: %w", name, openpgp.ErrMalformedData, err)
		}
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%s: %w: empty input", name, openpgp.ErrMalformedData)
	}
	return raw, nil
}
