package main

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"fmt"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jonwraymond/tokengate/auth"
)

func newJWKSCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "jwks [url]",
		Short: "Fetch a key set and list its signing keys",
		Long:  "Fetch the key set at url, or at the configured JWKS URL, and list each kid with its key type.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fetcherCfg := auth.JWKSConfig{}
			var url string
			if len(args) == 1 {
				url = args[0]
			} else {
				cfg, err := flags.load(cmd)
				if err != nil {
					return err
				}
				url = cfg.JWKSURL()
				fetcherCfg = auth.JWKSConfig{
					Timeout:       cfg.JWKS.Timeout,
					MaxBodyBytes:  cfg.JWKS.MaxBodyBytes,
					Authorization: cfg.JWKS.Authorization,
				}
			}

			keys, err := auth.NewJWKSFetcher(fetcherCfg).Fetch(cmd.Context(), url)
			if err != nil {
				return err
			}

			kids := make([]string, 0, len(keys))
			for kid := range keys {
				kids = append(kids, kid)
			}
			slices.Sort(kids)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KID\tTYPE")
			for _, kid := range kids {
				fmt.Fprintf(w, "%s\t%s\n", kid, describeKey(keys[kid]))
			}
			return w.Flush()
		},
	}
}

func describeKey(k crypto.PublicKey) string {
	switch k := k.(type) {
	case *rsa.PublicKey:
		return fmt.Sprintf("RSA %d", k.N.BitLen())
	case *ecdsa.PublicKey:
		return "EC " + k.Curve.Params().Name
	case ed25519.PublicKey:
		return "Ed25519"
	default:
		return fmt.Sprintf("%T", k)
	}
}
