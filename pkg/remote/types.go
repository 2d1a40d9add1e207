package remote

import (
	"context"
	"time"

	"google.golang.org/grpc"

	"github.com/fortiblox/cellvm/internal/types"
	"github.com/fortiblox/cellvm/pkg/cpu"
)

// Full method name of the Run call.
const runMethod = "/cellvm.Machine/Run"

// RunRequest asks the server to run one program.
type RunRequest struct {
	// Program is a raw or zstd-packed image.
	Program []byte `json:"program"`

	// StackCapacity defaults to cpu.DefaultStackCapacity when nil.
	StackCapacity *int32 `json:"stack_capacity,omitempty"`

	// Input is fed to in and get.
	Input []byte `json:"input,omitempty"`

	// Steps is the instruction budget. Zero or anything above the
	// server's limit means the server's limit.
	Steps uint64 `json:"steps,omitempty"`

	// Registers are loaded before the first instruction.
	Registers [cpu.NumRegisters]int32 `json:"registers"`
}

// RunResponse reports the outcome of a run.
type RunResponse struct {
	ProgramID types.ProgramID         `json:"program_id"`
	Status    string                  `json:"status"`
	Steps     int64                   `json:"steps"`
	Registers [cpu.NumRegisters]int32 `json:"registers"`
	StackSize int32                   `json:"stack_size"`
	Output    []byte                  `json:"output,omitempty"`
	Duration  time.Duration           `json:"duration_ns"`
}

// CPUStatus parses Status.
func (r *RunResponse) CPUStatus() (cpu.Status, error) {
	return cpu.ParseStatus(r.Status)
}

// MachineServer is the server API of the cellvm.Machine service.
type MachineServer interface {
	Run(ctx context.Context, req *RunRequest) (*RunResponse, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: "cellvm.Machine",
	HandlerType: (*MachineServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Run", Handler: runHandler},
	},
	Streams: []grpc.StreamDesc{},
}

func runHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(RunRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MachineServer).Run(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: runMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(MachineServer).Run(ctx, req.(*RunRequest))
	}
	return interceptor(ctx, in, info, handler)
}
