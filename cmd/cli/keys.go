package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"

	clientcrypto "github.com/and161185/collabvault/internal/crypto/clientcrypto"
)

func keygenCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Create the device signing key pair and print the public key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(keysPath()); err == nil && !force {
				return errors.New("device keys already exist (use --force to replace)")
			}
			k, err := clientcrypto.GenerateDeviceKeys()
			if err != nil {
				return err
			}
			if err := saveKeys(k); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), k.PublicKey)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing keys")
	return cmd
}

func authHeaderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "auth-header",
		Short: "Print a fresh authorization header for the stored device keys",
		RunE: func(cmd *cobra.Command, _ []string) error {
			k, err := loadKeys()
			if err != nil {
				return err
			}
			h, err := k.AuthorizationHeader(time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), h)
			return nil
		},
	}
}

type billingTokenInfo struct {
	Account   string    `json:"account"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	Expired   bool      `json:"expired"`
}

// inspectBillingToken reads the claims of a billing credential without verifying it.
func inspectBillingToken(token string, now time.Time) (billingTokenInfo, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return billingTokenInfo{}, fmt.Errorf("parse token: %w", err)
	}
	info := billingTokenInfo{Account: claims.Subject}
	if claims.IssuedAt != nil {
		info.IssuedAt = claims.IssuedAt.Time.UTC()
	}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time.UTC()
		info.Expired = now.After(info.ExpiresAt)
	}
	return info, nil
}

func billingTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "billing-token <token>",
		Short: "Show the account and expiry of a billing credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := inspectBillingToken(args[0], time.Now())
			if err != nil {
				return err
			}
			printJSON(cmd.OutOrStdout(), info)
			return nil
		},
	}
}
