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

package shared

import (
	"errors"
	"fmt"
	"io"
	"os"

	hostlinkerrors "github.com/tombee/hostlink/pkg/errors"
)

// Exit codes for hostlink commands
const (
	ExitSuccess     = 0
	ExitFailed      = 1
	ExitConfigError = 2
	ExitRPCError    = 3
)

// ExitError is an error that carries an exit code
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

// NewConfigError creates an error for unusable configuration
func NewConfigError(msg string, cause error) *ExitError {
	return &ExitError{
		Code:    ExitConfigError,
		Message: msg,
		Cause:   cause,
	}
}

// NewRPCError creates an error for calls the remote side answered with an
// error response
func NewRPCError(msg string, cause error) *ExitError {
	return &ExitError{
		Code:    ExitRPCError,
		Message: msg,
		Cause:   cause,
	}
}

// ExitCode returns the exit code for err.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailed
}

// HandleExitError prints err and exits with the matching code
func HandleExitError(err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, "Error:", err.Error())
	printSuggestion(os.Stderr, err)
	os.Exit(ExitCode(err))
}

// printSuggestion prints the suggestion of a ValidationError in the chain.
func printSuggestion(w io.Writer, err error) {
	var validationErr *hostlinkerrors.ValidationError
	if hostlinkerrors.As(err, &validationErr) && validationErr.Suggestion != "" {
		fmt.Fprintf(w, "\nSuggestion: %s\n", validationErr.Suggestion)
	}
}
