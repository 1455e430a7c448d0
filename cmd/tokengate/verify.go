package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jonwraymond/tokengate/auth"
)

func newVerifyCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "verify [token|-]",
		Short: "Verify a bearer token and print its claims",
		Long: "Verify a token against the configured issuer, audience and key set.\n" +
			"The token is read from stdin when the argument is - or missing.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := readToken(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			cfg, err := flags.load(cmd)
			if err != nil {
				return err
			}

			fetcher := auth.NewJWKSFetcher(auth.JWKSConfig{
				Timeout:       cfg.JWKS.Timeout,
				MaxBodyBytes:  cfg.JWKS.MaxBodyBytes,
				Authorization: cfg.JWKS.Authorization,
			})
			v, err := auth.NewTokenVerifier(cfg.VerifierConfig(), auth.NewDirectKeyProvider(fetcher, cfg.JWKSURL()))
			if err != nil {
				return err
			}

			claims, err := v.Verify(cmd.Context(), token)
			if err != nil {
				return fmt.Errorf("%s: %w", auth.FailureMessage(err), err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(claims)
		},
	}
}

func readToken(stdin io.Reader, args []string) (string, error) {
	var raw string
	if len(args) == 1 && args[0] != "-" {
		raw = args[0]
	} else {
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && err != io.EOF {
			return "", fmt.Errorf("read token: %w", err)
		}
		raw = line
	}
	token := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "Bearer "))
	if token == "" {
		return "", auth.ErrMissingCredentials
	}
	return token, nil
}
