package main

import (
	"encoding/json"
	"os"

	"custody/identity"

	"github.com/spf13/cobra"
)

type keygenOutput struct {
	PrivateKey string `json:"private_key"`
	WIF        string `json:"wif"`
	Address    string `json:"address"`
	Style      string `json:"style"`
}

func registerKeygen(parent *cobra.Command) {
	var style string
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a secp256k1 key and its caller address",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := identity.ParseStyle(style)
			if err != nil {
				return err
			}
			priv, err := identity.GenerateKey()
			if err != nil {
				return err
			}
			wif, err := identity.EncodeWIF(priv)
			if err != nil {
				return err
			}
			addr, err := identity.DeriveAddress(priv.PubKey(), st)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(keygenOutput{
				PrivateKey: identity.EncodePrivateKey(priv),
				WIF:        wif,
				Address:    string(addr),
				Style:      string(st),
			})
		},
	}
	cmd.Flags().StringVar(&style, "style", string(identity.StyleBTC), "address style: btc or eth")
	parent.AddCommand(cmd)
}
