// Command collabvault is a CLI client for the sync service.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	clientcrypto "github.com/and161185/collabvault/internal/crypto/clientcrypto"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// ---- config dir ----

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "collabvault")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "collabvault")
}

func keysPath() string { return filepath.Join(cfgDir(), "device.json") }

func saveKeys(k clientcrypto.DeviceKeys) error {
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(k, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(keysPath(), b, 0o600)
}

func loadKeys() (clientcrypto.DeviceKeys, error) {
	var k clientcrypto.DeviceKeys
	b, err := os.ReadFile(keysPath())
	if errors.Is(err, os.ErrNotExist) {
		return k, errors.New("no device keys (run keygen first)")
	}
	if err != nil {
		return k, err
	}
	if err := json.Unmarshal(b, &k); err != nil {
		return k, fmt.Errorf("device keys: %w", err)
	}
	return k, nil
}

// ---- grpc dial ----

// signedCreds attaches a fresh device assertion to every call.
type signedCreds struct {
	keys   clientcrypto.DeviceKeys
	now    func() time.Time
	secure bool
}

func (s signedCreds) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	h, err := s.keys.AuthorizationHeader(s.now())
	if err != nil {
		return nil, err
	}
	return map[string]string{"authorization": h}, nil
}

func (s signedCreds) RequireTransportSecurity() bool { return s.secure }

type dialOptions struct {
	addr      string
	caPath    string
	insecure  bool
	plaintext bool
}

func loadTLS(caPath string, skipVerify bool) (credentials.TransportCredentials, error) {
	if skipVerify {
		return credentials.NewTLS(&tls.Config{InsecureSkipVerify: true}), nil
	}
	if caPath == "" {
		return credentials.NewClientTLSFromCert(nil, ""), nil
	}
	pem, err := os.ReadFile(caPath)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("bad CA cert")
	}
	return credentials.NewTLS(&tls.Config{RootCAs: pool}), nil
}

// dial connects to the server; keys may be nil for unauthenticated methods.
func dial(o dialOptions, keys *clientcrypto.DeviceKeys) (*grpc.ClientConn, error) {
	var opts []grpc.DialOption
	if o.plaintext {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	} else {
		creds, err := loadTLS(o.caPath, o.insecure)
		if err != nil {
			return nil, err
		}
		opts = append(opts, grpc.WithTransportCredentials(creds))
	}
	if keys != nil {
		opts = append(opts, grpc.WithPerRPCCredentials(signedCreds{keys: *keys, now: time.Now, secure: !o.plaintext}))
	}
	return grpc.NewClient(o.addr, opts...)
}

// ---- utils ----

func readAll(p string) ([]byte, error) {
	if p == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(p)
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func describe(err error) error {
	if s, ok := status.FromError(err); ok && s.Code() != 0 {
		return fmt.Errorf("rpc error: code=%s msg=%s", s.Code(), s.Message())
	}
	return err
}

// ---- commands ----

func rootCmd() *cobra.Command {
	var o dialOptions
	root := &cobra.Command{
		Use:           "collabvault",
		Short:         "CLI client for the collabvault sync service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&o.addr, "addr", "localhost:8443", "server addr")
	pf.StringVar(&o.caPath, "cacert", "", "CA cert (PEM)")
	pf.BoolVar(&o.insecure, "insecure", false, "skip cert verify (dev)")
	pf.BoolVar(&o.plaintext, "plaintext", false, "connect without TLS (dev)")

	root.AddCommand(
		&cobra.Command{
			Use:   "version",
			Short: "Print the client version",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "collabvault %s (%s)\n", version, buildDate)
			},
		},
		keygenCmd(),
		authHeaderCmd(),
		methodsCmd(),
		callCmd(&o),
		billingTokenCmd(),
	)
	return root
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, describe(err))
		os.Exit(1)
	}
}
