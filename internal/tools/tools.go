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

// Package tools launches the remote service's tool windows from the host.
package tools

import (
	"context"

	"github.com/tombee/hostlink/internal/jsonrpc"
	hostlinkerrors "github.com/tombee/hostlink/pkg/errors"
)

// Caller issues blocking calls. *communicator.Communicator implements it.
type Caller interface {
	CallMethod(ctx context.Context, method string, params any) (*jsonrpc.Response, error)
}

// Tool names, in menu order.
const (
	Workfiles      = "workfiles_tool"
	Loader         = "loader_tool"
	Creator        = "creator_tool"
	SceneInventory = "scene_inventory_tool"
	Publish        = "publish_tool"
	LibraryLoader  = "library_loader_tool"
)

var names = []string{
	Workfiles,
	Loader,
	Creator,
	SceneInventory,
	Publish,
	LibraryLoader,
}

// Names returns the launchable tools in menu order.
func Names() []string {
	return append([]string(nil), names...)
}

func known(name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// Launch asks the remote service to open tool and waits for its answer. An
// error response from the service is returned as a *jsonrpc.Error.
func Launch(ctx context.Context, caller Caller, tool string) (*jsonrpc.Response, error) {
	if !known(tool) {
		return nil, &hostlinkerrors.NotFoundError{Resource: "tool", ID: tool}
	}

	resp, err := caller.CallMethod(ctx, tool, []any{})
	if err != nil {
		return nil, hostlinkerrors.Wrapf(err, "launch %s", tool)
	}
	if resp.IsError() {
		return resp, resp.Error
	}
	return resp, nil
}
