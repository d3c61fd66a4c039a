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

package main

import (
	"github.com/tombee/hostlink/internal/cli"
	"github.com/tombee/hostlink/internal/commands/call"
	"github.com/tombee/hostlink/internal/commands/completion"
	"github.com/tombee/hostlink/internal/commands/config"
	"github.com/tombee/hostlink/internal/commands/notify"
	"github.com/tombee/hostlink/internal/commands/serve"
	"github.com/tombee/hostlink/internal/commands/tool"
	versioncmd "github.com/tombee/hostlink/internal/commands/version"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cli.SetVersion(version, commit, buildDate)

	rootCmd := cli.NewRootCommand()

	// Link commands
	rootCmd.AddCommand(serve.NewCommand())
	rootCmd.AddCommand(call.NewCommand())
	rootCmd.AddCommand(notify.NewCommand())
	rootCmd.AddCommand(tool.NewCommand())

	// Configuration
	rootCmd.AddCommand(config.NewConfigCommand())
	rootCmd.AddCommand(completion.NewCommand())
	rootCmd.AddCommand(versioncmd.NewVersionCommand())

	rootCmd.SetHelpCommand(cli.NewHelpCommand(rootCmd))

	if err := rootCmd.Execute(); err != nil {
		cli.HandleExitError(err)
	}
}
