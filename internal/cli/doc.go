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

/*
Package cli provides the root command for the hostlink CLI.

This package creates the root Cobra command and handles global concerns like
version information, persistent flags, and error handling. Individual commands
are implemented in the internal/commands subpackages.

# Command Tree

	hostlink
	├── serve         Connect and answer host requests
	├── call          Send one request and print the response
	├── notify        Send one notification
	├── tool          Launch a host tool
	├── config        Show effective configuration
	├── completion    Generate shell completion scripts
	├── version       Show version
	└── help          Show help (--json for machine-readable output)

# Global Flags

	--verbose, -v    Enable debug logging
	--json           Output in JSON format
	--config         Path to config file

# Error Handling

Errors are mapped to exit codes by HandleExitError:

  - Exit 0: Success
  - Exit 1: General failure
  - Exit 2: Configuration error
  - Exit 3: The host answered with a JSON-RPC error
*/
package cli
