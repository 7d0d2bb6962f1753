package commands

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opd-ai/veilcall/crypto"
)

func keygenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a long-term identity key pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			keyPair, err := crypto.GenerateKeyPair()
			if err != nil {
				return err
			}
			defer crypto.WipeKeyPair(keyPair)

			fmt.Printf("public:  %s\n", hex.EncodeToString(keyPair.Public[:]))
			fmt.Printf("private: %s\n", hex.EncodeToString(keyPair.Private[:]))
			return nil
		},
	}
	return cmd
}

// parseKey decodes a 32-byte hex key.
func parseKey(s string) ([32]byte, error) {
	var key [32]byte
	raw, err := hex.DecodeString(s)
	if err != nil {
		return key, fmt.Errorf("invalid hex key: %w", err)
	}
	if len(raw) != 32 {
		return key, fmt.Errorf("key must be 32 bytes, got %d", len(raw))
	}
	copy(key[:], raw)
	return key, nil
}
