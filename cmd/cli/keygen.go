package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/techwithparamesh/agent-app-sub006/internal/initialization"
	"github.com/techwithparamesh/agent-app-sub006/internal/version"
)

func NewKeygenCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "keygen",
		Short:       "Generate the X25519 key pair credentials are sealed to",
		Annotations: map[string]string{"skipConfig": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			privateKey, publicKey, err := initialization.GenerateX25519KeyPair()
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "FLOWCORE_CREDENTIALS_X25519_PRIVATE_KEY=%s\n", privateKey)
			fmt.Fprintf(cmd.OutOrStdout(), "# public key, used to seal credentials: %s\n", publicKey)

			return nil
		},
	}
}

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print version information",
		Annotations: map[string]string{"skipConfig": "true"},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Get().String())
		},
	}
}
