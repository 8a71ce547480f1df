// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package bridge exposes the orchestrator over gRPC so a dashboard front-end
// can hold chat sessions with it, and provides the matching client.
//
// The service is bichat.Chat with two unary methods, Ask and Reset. Requests
// and replies are google.protobuf.Struct values described in package wire.
package bridge

import (
	"context"

	"bichat/cli/internal/bridge/grpcclient"
	"bichat/cli/internal/bridge/wire"
)

// Reply is a flattened QueryResult.
type Reply = wire.Reply

// Bridge is a client connection to a chat server.
type Bridge interface {
	// Ask sends question within sessionID. The server keeps the conversation
	// handle between calls of the same session.
	Ask(ctx context.Context, sessionID, question string) (Reply, error)
	// Reset drops the server-side conversation of sessionID.
	Reset(ctx context.Context, sessionID string) error
	Close() error
}

// Dial returns a gRPC bridge client for addr.
func Dial(addr string, opts grpcclient.Options) (Bridge, error) {
	c, err := grpcclient.Dial(addr, opts)
	if err != nil {
		return nil, err
	}
	return c, nil
}
