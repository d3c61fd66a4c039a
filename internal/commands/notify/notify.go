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

// Package notify implements the notify command.
package notify

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/hostlink/internal/commands/call"
	"github.com/tombee/hostlink/internal/commands/shared"
)

// NewCommand creates the notify command
func NewCommand() *cobra.Command {
	var waitOpen time.Duration

	cmd := &cobra.Command{
		Use:   "notify <method> [params-json]",
		Short: "Send a notification to the remote service",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := call.ParseParams(args[1:])
			if err != nil {
				return err
			}

			cfg, err := shared.LoadConfig()
			if err != nil {
				return err
			}
			if err := shared.RequireURL(cfg); err != nil {
				return err
			}

			link, err := shared.OpenLink(cfg, shared.NewLogger(cfg), nil)
			if err != nil {
				return err
			}
			defer link.Close(context.Background())

			if err := link.Connect(); err != nil {
				return err
			}
			if err := shared.WaitOpen(cmd.Context(), link.Communicator, waitOpen); err != nil {
				return err
			}

			return link.CallNotification(cmd.Context(), args[0], params)
		},
	}

	cmd.Flags().DurationVar(&waitOpen, "wait-open", 5*time.Second, "How long to wait for the connection to open")

	return cmd
}
