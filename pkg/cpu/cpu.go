// Package cpu implements a small register-based virtual machine.
//
// The machine has four 32-bit general registers (A-D), a status flag and an
// instruction pointer. Code and stack share one flat memory of 32-bit cells:
//
//	0                    stack top         stack bottom
//	| program | zero ... | <- stack grows -|
//
// The instruction pointer may only address cells below the stack top. The
// stack grows toward lower indices from the last cell of memory. load and
// store address the live part of the stack relative to register D.
package cpu

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrReleased is returned when closing a machine twice.
var ErrReleased = errors.New("machine memory already released")

// Options configures a Machine.
type Options struct {
	// Input feeds the in and get instructions. A *bufio.Reader is used
	// as is, so callers may share it. Nil means an empty stream.
	Input io.Reader

	// Output receives out and put. Nil discards output.
	Output io.Writer
}

// Machine is a single virtual CPU. It is not safe for concurrent use.
type Machine struct {
	regs      [NumRegisters]int32
	status    Status
	stackSize int32
	ip        int32

	mem         []int32
	stackBottom int
	stackTop    int

	input  *bufio.Reader
	output io.Writer
}

// NewMachine builds a machine around mem. The machine takes ownership of
// the cells; mem.Cells is detached and must not be used afterwards.
func NewMachine(mem *Memory, opts Options) *Machine {
	if mem == nil || mem.Cells == nil {
		panic("cpu: NewMachine with nil memory")
	}

	in, ok := opts.Input.(*bufio.Reader)
	if !ok {
		src := opts.Input
		if src == nil {
			src = strings.NewReader("")
		}
		in = bufio.NewReader(src)
	}
	out := opts.Output
	if out == nil {
		out = io.Discard
	}

	m := &Machine{
		mem:         mem.Cells,
		stackBottom: mem.StackBottom,
		stackTop:    mem.StackBottom - mem.StackCapacity + 1,
		input:       in,
		output:      out,
	}
	mem.Cells = nil
	return m
}

// resetState clears registers, status, stack size and instruction pointer.
func (m *Machine) resetState() {
	m.regs = [NumRegisters]int32{}
	m.status = StatusOK
	m.stackSize = 0
	m.ip = 0
}

// Register returns the value of r. r must be valid.
func (m *Machine) Register(r Register) int32 {
	mustValid(r)
	return m.regs[r]
}

// SetRegister sets r to v. r must be valid.
func (m *Machine) SetRegister(r Register, v int32) {
	mustValid(r)
	m.regs[r] = v
}

func mustValid(r Register) {
	if !r.Valid() {
		panic(fmt.Sprintf("cpu: invalid register %d", int32(r)))
	}
}

// Registers returns a copy of the register file.
func (m *Machine) Registers() [NumRegisters]int32 {
	return m.regs
}

// Status returns the current status.
func (m *Machine) Status() Status {
	return m.status
}

// StackSize returns the number of values on the stack.
func (m *Machine) StackSize() int32 {
	return m.stackSize
}

// StackCapacity returns the maximum number of values on the stack.
func (m *Machine) StackCapacity() int {
	return m.stackBottom - m.stackTop + 1
}

// IP returns the instruction pointer.
func (m *Machine) IP() int32 {
	return m.ip
}

// Stack returns a copy of the live stack, most recently pushed first.
func (m *Machine) Stack() []int32 {
	if m.mem == nil {
		return nil
	}
	live := m.mem[m.stackBottom-int(m.stackSize)+1 : m.stackBottom+1]
	return append([]int32(nil), live...)
}

// Next returns the cells of the instruction at the instruction pointer:
// the opcode followed by as many of its operands as memory holds. It
// returns nil when the instruction pointer is outside the code region.
func (m *Machine) Next() []int32 {
	if m.mem == nil || m.ip < 0 || int(m.ip) >= m.stackTop {
		return nil
	}
	end := int(m.ip) + 1 + Opcode(m.mem[m.ip]).Operands()
	if end > len(m.mem) {
		end = len(m.mem)
	}
	return append([]int32(nil), m.mem[m.ip:end]...)
}

// Reset re-arms the machine for another run of the same program: registers,
// status, instruction pointer and stack size are cleared and the whole stack
// region is zeroed. The program region is never written by instructions, so
// it needs no restoring.
func (m *Machine) Reset() {
	m.resetState()
	if m.mem != nil {
		clear(m.mem[m.stackTop : m.stackBottom+1])
	}
}

// Close releases the machine's memory. Further steps are no-ops.
func (m *Machine) Close() error {
	if m.mem == nil {
		return ErrReleased
	}
	m.resetState()
	m.mem = nil
	return nil
}

// Step executes one instruction. It reports whether the machine is still
// running afterwards; stepping a stopped machine does nothing.
func (m *Machine) Step() bool {
	if m.status != StatusOK || m.mem == nil {
		return false
	}

	if m.ip < 0 || int(m.ip) >= m.stackTop {
		m.status = StatusInvalidAddress
		return false
	}

	op := Opcode(m.mem[m.ip])
	if !op.Valid() {
		m.status = StatusIllegalInstruction
		return false
	}

	instructions[op](m)
	return m.status == StatusOK
}

// Run steps the machine until it stops or steps instructions have been
// executed. It returns the number of instructions executed, negated when the
// machine stopped with an error status. The instruction that halted or failed
// is counted.
func (m *Machine) Run(steps uint64) int64 {
	if m.status != StatusOK || m.mem == nil {
		return 0
	}

	var performed int64
	for m.status == StatusOK && uint64(performed) < steps {
		m.Step()
		performed++
	}

	if m.status.Failed() {
		return -performed
	}
	return performed
}
