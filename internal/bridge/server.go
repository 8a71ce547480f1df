// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package bridge

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"bichat/cli/internal/bridge/wire"
	"bichat/cli/internal/orchestrator"

	"github.com/jellydator/ttlcache/v3"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const DefaultSessionIdle = 30 * time.Minute

// ServerOptions configures a Server.
type ServerOptions struct {
	// Token, when set, must be presented as a bearer token by every call.
	Token string
	// SessionIdle evicts sessions unused for this long.
	SessionIdle time.Duration
	// MaxRows bounds the rows returned per reply.
	MaxRows int
	Logger  *slog.Logger
}

// Server serves bichat.Chat on top of an orchestrator. Each session id gets
// its own orchestrator.Session held in memory.
type Server struct {
	o       *orchestrator.Orchestrator
	token   string
	maxRows int
	log     *slog.Logger

	mu       sync.Mutex
	sessions *ttlcache.Cache[string, *orchestrator.Session]
}

// NewServer creates a server.
func NewServer(o *orchestrator.Orchestrator, opts ServerOptions) *Server {
	if opts.SessionIdle <= 0 {
		opts.SessionIdle = DefaultSessionIdle
	}
	if opts.MaxRows <= 0 {
		opts.MaxRows = 1000
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		o:        o,
		token:    opts.Token,
		maxRows:  opts.MaxRows,
		log:      opts.Logger,
		sessions: ttlcache.New(ttlcache.WithTTL[string, *orchestrator.Session](opts.SessionIdle)),
	}
}

// Register attaches the service to r.
func (s *Server) Register(r grpc.ServiceRegistrar) {
	r.RegisterService(&chatServiceDesc, s)
}

// Serve runs a gRPC server on lis until ctx is done or the listener fails.
// It returns only after its helper goroutines have exited.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	gs := grpc.NewServer()
	s.Register(gs)

	go s.sessions.Start()
	defer s.sessions.Stop()

	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		select {
		case <-ctx.Done():
			gs.GracefulStop()
		case <-done:
		}
	}()
	s.log.Info("chat bridge listening", "addr", lis.Addr().String())
	err := gs.Serve(lis)
	close(done)
	<-stopped
	if errors.Is(err, grpc.ErrServerStopped) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (s *Server) authorize(ctx context.Context) error {
	if s.token == "" {
		return nil
	}
	md, _ := metadata.FromIncomingContext(ctx)
	for _, v := range md.Get("authorization") {
		if subtle.ConstantTimeCompare([]byte(v), []byte("Bearer "+s.token)) == 1 {
			return nil
		}
	}
	return status.Error(codes.Unauthenticated, "missing or invalid bearer token")
}

func (s *Server) session(id string) *orchestrator.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item := s.sessions.Get(id); item != nil {
		return item.Value()
	}
	sess := orchestrator.NewSession(s.o)
	s.sessions.Set(id, sess, ttlcache.DefaultTTL)
	return sess
}

// Ask answers a question within the request's session.
func (s *Server) Ask(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := s.authorize(ctx); err != nil {
		return nil, err
	}
	req, err := wire.ParseAskRequest(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	res := s.session(req.SessionID).Ask(ctx, req.Question)
	s.log.Debug("bridge ask", "session_id", req.SessionID, "success", res.Success, "path", res.Path.String())
	out, err := wire.NewReply(res, s.maxRows).Struct()
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// Reset drops the conversation of the request's session.
func (s *Server) Reset(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := s.authorize(ctx); err != nil {
		return nil, err
	}
	req, err := wire.ParseResetRequest(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	s.mu.Lock()
	s.sessions.Delete(req.SessionID)
	s.mu.Unlock()
	return &structpb.Struct{}, nil
}

type chatServer interface {
	Ask(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Reset(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

func unaryHandler(method string, call func(chatServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(chatServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(chatServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var chatServiceDesc = grpc.ServiceDesc{
	ServiceName: wire.ServiceName,
	HandlerType: (*chatServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Ask", Handler: unaryHandler(wire.MethodAsk, chatServer.Ask)},
		{MethodName: "Reset", Handler: unaryHandler(wire.MethodReset, chatServer.Reset)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "bichat/chat.proto",
}
