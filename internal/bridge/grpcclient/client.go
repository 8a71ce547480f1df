// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package grpcclient is the gRPC implementation of the chat bridge client.
// It calls the bichat.Chat service with unary Struct messages and attaches the
// bearer token to every call.
package grpcclient

import (
	"context"
	"crypto/tls"
	"errors"
	"net"

	"bichat/cli/internal/bridge/wire"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
)

// Options configures Dial.
type Options struct {
	// Token is sent as "authorization: Bearer <token>" when non-empty.
	Token string
	// Insecure disables TLS, for local servers.
	Insecure bool
	// DialOptions are appended to the defaults.
	DialOptions []grpc.DialOption
}

// Client talks to a bichat.Chat server.
type Client struct {
	conn  *grpc.ClientConn
	token string
}

// Dial creates a client for addr. TLS connections default to port 443 and use
// the host part of addr for SNI. The connection is established lazily.
func Dial(addr string, opts Options) (*Client, error) {
	if addr == "" {
		return nil, errors.New("bridge address is required")
	}
	target := addr
	var creds credentials.TransportCredentials
	if opts.Insecure {
		creds = insecure.NewCredentials()
	} else {
		host := addr
		if h, _, err := net.SplitHostPort(addr); err == nil {
			host = h
		} else {
			target = net.JoinHostPort(addr, "443")
		}
		creds = credentials.NewTLS(&tls.Config{ServerName: host, MinVersion: tls.VersionTLS12})
	}

	dopts := append([]grpc.DialOption{grpc.WithTransportCredentials(creds)}, opts.DialOptions...)
	conn, err := grpc.NewClient(target, dopts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, token: opts.Token}, nil
}

func (c *Client) outgoing(ctx context.Context) context.Context {
	if c.token == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
}

// Ask sends a question in the given session.
func (c *Client) Ask(ctx context.Context, sessionID, question string) (wire.Reply, error) {
	in, err := wire.AskRequest{SessionID: sessionID, Question: question}.Struct()
	if err != nil {
		return wire.Reply{}, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(c.outgoing(ctx), wire.MethodAsk, in, out); err != nil {
		return wire.Reply{}, err
	}
	return wire.ParseReply(out), nil
}

// Reset clears the conversation of a session on the server.
func (c *Client) Reset(ctx context.Context, sessionID string) error {
	in, err := wire.ResetRequest{SessionID: sessionID}.Struct()
	if err != nil {
		return err
	}
	return c.conn.Invoke(c.outgoing(ctx), wire.MethodReset, in, new(structpb.Struct))
}

func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
