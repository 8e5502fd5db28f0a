package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"divine-dvm/internal/common/nostr"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a new service identity",
	RunE: func(cmd *cobra.Command, args []string) error {
		keys, err := nostr.GenerateKeys()
		if err != nil {
			return err
		}
		nsec, err := keys.Nsec()
		if err != nil {
			return err
		}
		npub, err := keys.Npub()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "NOSTR_PRIVATE_KEY=%s\n", nsec)
		fmt.Fprintf(out, "# hex secret: %s\n", keys.SecretKeyHex())
		fmt.Fprintf(out, "# public key: %s (%s)\n", npub, keys.PublicKey())
		return nil
	},
}
