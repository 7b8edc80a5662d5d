package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	clientcrypto "github.com/and161185/collabvault/internal/crypto/clientcrypto"
	grpcserver "github.com/and161185/collabvault/internal/server/grpc"
)

// Methods callable without device keys.
var unauthenticated = []string{"CreateUser", "FetchAddDeviceVerification", "DevicesForContactInvitation"}

func methodsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "methods",
		Short: "List the methods of the sync service",
		Run: func(cmd *cobra.Command, _ []string) {
			for _, m := range grpcserver.Methods() {
				fmt.Fprintln(cmd.OutOrStdout(), m)
			}
		},
	}
}

func callCmd(o *dialOptions) *cobra.Command {
	var (
		file    string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "call <Method>",
		Short: "Invoke a method with a JSON request and print the JSON response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			method := args[0]
			if !slices.Contains(grpcserver.Methods(), method) {
				return fmt.Errorf("unknown method %q (see methods)", method)
			}
			var body []byte
			if file != "" {
				b, err := readAll(file)
				if err != nil {
					return err
				}
				body = b
			}

			var keys *clientcrypto.DeviceKeys
			if !slices.Contains(unauthenticated, method) {
				k, err := loadKeys()
				if err != nil {
					return err
				}
				keys = &k
			}
			cc, err := dial(*o, keys)
			if err != nil {
				return err
			}
			defer cc.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return invoke(ctx, grpcserver.NewClient(cc), method, body, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "request JSON file ('-'=stdin); empty sends {}")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "call timeout")
	return cmd
}

// invoke sends body as the request of method and pretty-prints the response to w.
func invoke(ctx context.Context, cl *grpcserver.Client, method string, body []byte, w io.Writer, opts ...grpc.CallOption) error {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		body = []byte("{}")
	}
	if !json.Valid(body) {
		return fmt.Errorf("request is not valid JSON")
	}
	req := json.RawMessage(body)
	var resp json.RawMessage
	if err := cl.Call(ctx, method, &req, &resp, opts...); err != nil {
		return describe(err)
	}
	var v any
	if len(resp) == 0 {
		v = struct{}{}
	} else if err := json.Unmarshal(resp, &v); err != nil {
		return err
	}
	printJSON(w, v)
	return nil
}
