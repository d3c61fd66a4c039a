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

// Package tool implements the tool command.
package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/hostlink/internal/commands/shared"
	"github.com/tombee/hostlink/internal/tools"
)

// NewCommand creates the tool command
func NewCommand() *cobra.Command {
	var waitOpen time.Duration

	cmd := &cobra.Command{
		Use:   "tool [name]",
		Short: "Open a remote tool window",
		Long: `Ask the remote service to open one of its tools.

Without a name, the available tools are listed.`,
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: tools.Names(),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				for _, name := range tools.Names() {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
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

			resp, err := tools.Launch(cmd.Context(), link.Communicator, args[0])
			if err != nil {
				if resp != nil {
					return shared.NewRPCError(fmt.Sprintf("%s failed", args[0]), err)
				}
				return err
			}

			result := resp.Result
			if len(result) == 0 {
				result = json.RawMessage("null")
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(result))
			return nil
		},
	}

	cmd.Flags().DurationVar(&waitOpen, "wait-open", 5*time.Second, "How long to wait for the connection to open")

	return cmd
}
