// Package executor runs program images on a fresh machine and reports the
// outcome, optionally recording it in a run journal.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/fortiblox/cellvm/internal/types"
	"github.com/fortiblox/cellvm/pkg/cpu"
	"github.com/fortiblox/cellvm/pkg/program"
	"github.com/fortiblox/cellvm/pkg/runlog"
)

// Executor errors.
var (
	ErrProgramLoadFailed = errors.New("program load failed")
	ErrJournalFailed     = errors.New("journal append failed")
)

// DefaultSteps is the step budget used when none is given.
const DefaultSteps = math.MaxInt32

// sliceSteps is how many instructions run between context checks.
const sliceSteps = 1 << 16

// Journal receives a record of every run.
type Journal interface {
	Append(rec *runlog.Record) error
}

// Config configures an Executor.
type Config struct {
	// Journal, if set, records every run.
	Journal Journal
}

// Options configures a single run.
type Options struct {
	// StackCapacity is the number of stack cells. Zero means no stack.
	StackCapacity int

	// Steps is the instruction budget. Zero means DefaultSteps.
	Steps uint64

	// Input and Output are the machine's byte streams.
	Input  io.Reader
	Output io.Writer

	// Registers are loaded before the first instruction.
	Registers [cpu.NumRegisters]int32
}

// DefaultOptions returns options with the default stack and budget.
func DefaultOptions() Options {
	return Options{
		StackCapacity: cpu.DefaultStackCapacity,
		Steps:         DefaultSteps,
	}
}

// Result is the outcome of a run.
type Result struct {
	ProgramID types.ProgramID
	Status    cpu.Status

	// Steps is the number of instructions executed, negated when the
	// machine stopped with an error.
	Steps int64

	Registers [cpu.NumRegisters]int32
	StackSize int32
	Started   time.Time
	Duration  time.Duration

	// Seq is the journal sequence number, zero when not recorded.
	Seq uint64
}

// Err returns the error of a failing status.
func (r *Result) Err() error {
	return r.Status.Err()
}

// Executor runs programs.
type Executor struct {
	journal Journal
}

// New creates an executor.
func New(cfg Config) *Executor {
	return &Executor{journal: cfg.Journal}
}

// Execute loads img and runs it until it stops, the budget is spent or ctx
// is done. A cancelled run still returns its partial result together with
// the context's error.
func (e *Executor) Execute(ctx context.Context, img *program.Image, opts Options) (*Result, error) {
	mem, err := img.Load(opts.StackCapacity)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProgramLoadFailed, err)
	}

	m := cpu.NewMachine(mem, cpu.Options{Input: opts.Input, Output: opts.Output})
	defer m.Close()
	for r, v := range opts.Registers {
		m.SetRegister(cpu.Register(r), v)
	}

	budget := opts.Steps
	if budget == 0 {
		budget = DefaultSteps
	}

	started := time.Now()
	var performed int64
	var runErr error
	for budget > 0 && m.Status() == cpu.StatusOK {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		n := m.Run(min(budget, sliceSteps))
		if n < 0 {
			n = -n
		}
		performed += n
		budget -= uint64(n)
	}
	if m.Status().Failed() {
		performed = -performed
	}

	res := &Result{
		ProgramID: img.ID,
		Status:    m.Status(),
		Steps:     performed,
		Registers: m.Registers(),
		StackSize: m.StackSize(),
		Started:   started.UTC(),
		Duration:  time.Since(started),
	}

	if e.journal != nil {
		rec := &runlog.Record{
			ProgramID: res.ProgramID,
			Status:    res.Status,
			Steps:     res.Steps,
			Registers: res.Registers,
			StackSize: res.StackSize,
			Started:   res.Started,
			Duration:  res.Duration,
		}
		if err := e.journal.Append(rec); err != nil {
			return res, fmt.Errorf("%w: %v", ErrJournalFailed, err)
		}
		res.Seq = rec.Seq
	}

	return res, runErr
}
