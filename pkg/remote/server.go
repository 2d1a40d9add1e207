// Package remote serves program runs over gRPC.
//
// The service is described by hand instead of generated code; messages
// travel as JSON under the "json" content subtype.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync/atomic"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"

	"github.com/fortiblox/cellvm/pkg/cpu"
	"github.com/fortiblox/cellvm/pkg/executor"
	"github.com/fortiblox/cellvm/pkg/program"
)

var errOutputLimit = errors.New("output limit reached")

// Server runs programs on behalf of remote clients.
type Server struct {
	config Config
	exec   *executor.Executor
	grpc   *grpc.Server

	runs atomic.Uint64
}

// NewServer creates a server. Zero fields of config take their defaults.
func NewServer(config Config) *Server {
	def := DefaultConfig()
	if config.Addr == "" {
		config.Addr = def.Addr
	}
	if config.MaxSteps == 0 {
		config.MaxSteps = def.MaxSteps
	}
	if config.MaxStackCapacity == 0 {
		config.MaxStackCapacity = def.MaxStackCapacity
	}
	if config.MaxOutput == 0 {
		config.MaxOutput = def.MaxOutput
	}
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = def.MaxMessageSize
	}
	if config.KeepaliveTime == 0 {
		config.KeepaliveTime = def.KeepaliveTime
	}
	if config.KeepaliveTimeout == 0 {
		config.KeepaliveTimeout = def.KeepaliveTimeout
	}

	s := &Server{
		config: config,
		exec:   executor.New(executor.Config{Journal: config.Journal}),
	}
	s.grpc = grpc.NewServer(
		grpc.MaxRecvMsgSize(config.MaxMessageSize),
		grpc.MaxSendMsgSize(config.MaxMessageSize),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    config.KeepaliveTime,
			Timeout: config.KeepaliveTimeout,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             config.KeepaliveTime / 2,
			PermitWithoutStream: true,
		}),
	)
	s.grpc.RegisterService(&serviceDesc, s)
	return s
}

// Serve accepts connections on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	log.Printf("[REMOTE] Listening on %s", lis.Addr())
	return s.grpc.Serve(lis)
}

// ListenAndServe listens on the configured address.
func (s *Server) ListenAndServe() error {
	lis, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return s.Serve(lis)
}

// Stop waits for in-flight runs and stops the server.
func (s *Server) Stop() {
	s.grpc.GracefulStop()
}

// Runs returns the number of runs served.
func (s *Server) Runs() uint64 {
	return s.runs.Load()
}

// Run implements MachineServer.
func (s *Server) Run(ctx context.Context, req *RunRequest) (*RunResponse, error) {
	img, err := program.New(req.Program)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "bad program: %v", err)
	}

	opts := executor.DefaultOptions()
	if req.StackCapacity != nil {
		c := int(*req.StackCapacity)
		if c < 0 || c > s.config.MaxStackCapacity {
			return nil, status.Errorf(codes.InvalidArgument, "stack capacity %d out of range", c)
		}
		opts.StackCapacity = c
	}
	opts.Steps = s.config.MaxSteps
	if req.Steps != 0 && req.Steps < opts.Steps {
		opts.Steps = req.Steps
	}
	out := &limitedBuffer{max: s.config.MaxOutput}
	opts.Input = bytes.NewReader(req.Input)
	opts.Output = out
	opts.Registers = req.Registers

	res, err := s.exec.Execute(ctx, img, opts)
	if err != nil {
		if res == nil {
			return nil, status.Errorf(codes.InvalidArgument, "%v", err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, status.FromContextError(ctxErr).Err()
		}
		log.Printf("[REMOTE] %v", err)
	}
	s.runs.Add(1)

	if res.Status == cpu.StatusIOError && out.full {
		log.Printf("[REMOTE] Run %s stopped: output over %d bytes", img.ID.Short(), s.config.MaxOutput)
	}

	return &RunResponse{
		ProgramID: res.ProgramID,
		Status:    res.Status.String(),
		Steps:     res.Steps,
		Registers: res.Registers,
		StackSize: res.StackSize,
		Output:    out.buf.Bytes(),
		Duration:  res.Duration,
	}, nil
}

// limitedBuffer fails writes once max bytes have been written.
type limitedBuffer struct {
	buf  bytes.Buffer
	max  int
	full bool
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if b.buf.Len()+len(p) > b.max {
		b.full = true
		return 0, errOutputLimit
	}
	return b.buf.Write(p)
}
