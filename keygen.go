package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nicebartender/claudio-bot/ws"
)

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a bridge signing keypair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pub, priv, err := ed25519.GenerateKey(rand.Reader)
			if err != nil {
				return fmt.Errorf("generate key: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "BOT_BRIDGE_PUBLIC_KEY=%s\n", ws.EncodeKey(pub))
			fmt.Fprintf(out, "BRIDGE_PRIVATE_KEY=%s\n", base64.RawURLEncoding.EncodeToString(priv.Seed()))
			return nil
		},
	}
}
