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

package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	hostlinkerrors "github.com/tombee/hostlink/pkg/errors"
)

// ShellExecutor runs scripts through a local shell. It stands in for the
// host's script engine when hostlink runs as a standalone process.
type ShellExecutor struct {
	// Shell is the interpreter invoked as "<shell> -c <script>".
	// Default: sh
	Shell string

	// WorkingDir is the working directory for scripts.
	WorkingDir string

	// Timeout bounds a single script.
	// Default: 30 seconds
	Timeout time.Duration
}

// Execute runs script. A non-zero exit status is reported as ok=false with
// no error; failing to start the shell or exceeding Timeout is an error.
func (s *ShellExecutor) Execute(ctx context.Context, script string) (string, bool, error) {
	shell := s.Shell
	if shell == "" {
		shell = "sh"
	}
	timeout := s.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, shell, "-c", script)
	if s.WorkingDir != "" {
		cmd.Dir = s.WorkingDir
	}
	// Background children can keep stdout open after the shell is killed.
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	output := strings.TrimSpace(stdout.String())

	if ctx.Err() == context.DeadlineExceeded {
		return "", false, &hostlinkerrors.TimeoutError{
			Operation: "script",
			Duration:  timeout,
			Cause:     ctx.Err(),
		}
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return output, false, nil
		}
		errMsg := strings.TrimSpace(stderr.String())
		if errMsg == "" {
			errMsg = err.Error()
		}
		return "", false, fmt.Errorf("script failed to run: %s", errMsg)
	}

	return output, true, nil
}
