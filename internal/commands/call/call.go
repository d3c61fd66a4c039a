// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package call implements the call command.
package call

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/hostlink/internal/commands/shared"
	"github.com/tombee/hostlink/internal/jq"
	hostlinkerrors "github.com/tombee/hostlink/pkg/errors"
)

// NewCommand creates the call command
func NewCommand() *cobra.Command {
	var (
		query    string
		waitOpen time.Duration
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "call <method> [params-json]",
		Short: "Call a remote method and print its result",
		Long: `Connect to the remote service, call one method and print the result as JSON.

Params must be a JSON array or object. An error response is printed and the
command exits with code 3.`,
		Example: `  hostlink call ping '{"seq": 1}'
  hostlink call list_workfiles '[]' --query '.[0]'`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCall(cmd, args, query, waitOpen, timeout)
		},
	}

	cmd.Flags().StringVar(&query, "query", "", "jq expression applied to the result")
	cmd.Flags().DurationVar(&waitOpen, "wait-open", 5*time.Second, "How long to wait for the connection to open")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Give up waiting for the response after this long (0 waits forever)")

	return cmd
}

// ParseParams validates optional params given on the command line.
func ParseParams(args []string) (json.RawMessage, error) {
	if len(args) == 0 {
		return nil, nil
	}
	raw := json.RawMessage(bytes.TrimSpace([]byte(args[0])))
	if !json.Valid(raw) {
		return nil, &hostlinkerrors.ValidationError{
			Field:      "params",
			Message:    fmt.Sprintf("not valid JSON: %s", args[0]),
			Suggestion: `quote the params, e.g. '{"seq": 1}'`,
		}
	}
	if raw[0] != '[' && raw[0] != '{' {
		return nil, &hostlinkerrors.ValidationError{
			Field:      "params",
			Message:    fmt.Sprintf("must be a JSON array or object, got %s", raw),
			Suggestion: `wrap a single value in an array, e.g. '[5]'`,
		}
	}
	return raw, nil
}

func runCall(cmd *cobra.Command, args []string, query string, waitOpen, timeout time.Duration) error {
	method := args[0]
	params, err := ParseParams(args[1:])
	if err != nil {
		return err
	}

	var filter *jq.Filter
	if query != "" {
		if filter, err = jq.Compile(query, 0, 0); err != nil {
			return err
		}
	}

	cfg, err := shared.LoadConfig()
	if err != nil {
		return err
	}
	if err := shared.RequireURL(cfg); err != nil {
		return err
	}

	logger := shared.NewLogger(cfg)
	link, err := shared.OpenLink(cfg, logger, nil)
	if err != nil {
		return err
	}
	defer link.Close(context.Background())

	ctx := cmd.Context()
	if err := link.Connect(); err != nil {
		return err
	}
	if err := shared.WaitOpen(ctx, link.Communicator, waitOpen); err != nil {
		return err
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	resp, err := link.CallMethod(ctx, method, params)
	if err != nil {
		return err
	}

	out := json.NewEncoder(cmd.OutOrStdout())
	out.SetIndent("", "  ")

	if resp.IsError() {
		if err := out.Encode(resp.Error); err != nil {
			return err
		}
		return shared.NewRPCError(fmt.Sprintf("%s failed", method), resp.Error)
	}

	var result any = resp.Result
	if filter != nil {
		if result, err = filter.Apply(ctx, resp.Result); err != nil {
			return fmt.Errorf("query %q: %w", filter, err)
		}
	} else if len(resp.Result) == 0 {
		result = nil
	}
	return out.Encode(result)
}
