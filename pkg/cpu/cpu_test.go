package cpu

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// newTestMachine loads program in front of a stack of stackCapacity cells.
func newTestMachine(t *testing.T, program []int32, stackCapacity int, input string) (*Machine, *bytes.Buffer) {
	t.Helper()
	mem, err := LoadMemory(bytes.NewReader(EncodeCells(program)), stackCapacity)
	if err != nil {
		t.Fatalf("LoadMemory() failed: %v", err)
	}
	var out bytes.Buffer
	return NewMachine(mem, Options{Input: strings.NewReader(input), Output: &out}), &out
}

func wantRegisters(t *testing.T, m *Machine, want [NumRegisters]int32) {
	t.Helper()
	if diff := cmp.Diff(want, m.Registers()); diff != "" {
		t.Errorf("registers mismatch (-want +got):\n%s", diff)
	}
}

func wantStatus(t *testing.T, m *Machine, want Status) {
	t.Helper()
	if got := m.Status(); got != want {
		t.Errorf("Status() = %v, want %v", got, want)
	}
}

// TestRunPrintsAndHalts runs movr A,42; out A; halt.
func TestRunPrintsAndHalts(t *testing.T) {
	m, out := newTestMachine(t, []int32{9, 0, 42, 14, 0, 1}, DefaultStackCapacity, "")

	if n := m.Run(math.MaxInt32); n != 3 {
		t.Errorf("Run() = %d, want 3", n)
	}
	if out.String() != "42" {
		t.Errorf("output = %q, want %q", out.String(), "42")
	}
	wantStatus(t, m, StatusHalted)
}

// TestPushPopThroughStack runs push A; pop B; halt with A preset.
func TestPushPopThroughStack(t *testing.T) {
	m, _ := newTestMachine(t, []int32{17, 0, 18, 1, 1}, DefaultStackCapacity, "")
	m.SetRegister(RegA, 7)

	if n := m.Run(math.MaxInt32); n != 3 {
		t.Errorf("Run() = %d, want 3", n)
	}
	if m.Register(RegB) != 7 {
		t.Errorf("B = %d, want 7", m.Register(RegB))
	}
	if m.StackSize() != 0 {
		t.Errorf("StackSize() = %d, want 0", m.StackSize())
	}
	wantStatus(t, m, StatusHalted)
}

// TestStepStopped tests that a stopped machine does not move.
func TestStepStopped(t *testing.T) {
	m, _ := newTestMachine(t, []int32{1, 6, 0}, DefaultStackCapacity, "")

	if m.Step() {
		t.Error("Step() on halt = true, want false")
	}
	wantStatus(t, m, StatusHalted)

	for i := 0; i < 3; i++ {
		if m.Step() {
			t.Error("Step() after halt = true, want false")
		}
	}
	if m.IP() != 0 {
		t.Errorf("IP() = %d, want 0", m.IP())
	}
	wantRegisters(t, m, [NumRegisters]int32{})
	if n := m.Run(10); n != 0 {
		t.Errorf("Run() after halt = %d, want 0", n)
	}
}

// TestArithmetic tests add, sub and mul against every source register.
func TestArithmetic(t *testing.T) {
	preset := [NumRegisters]int32{6, -3, 5, 100}

	for _, op := range []Opcode{OpAdd, OpSub, OpMul} {
		for r := RegA; r <= RegD; r++ {
			t.Run(op.String()+" "+r.String(), func(t *testing.T) {
				m, _ := newTestMachine(t, []int32{int32(op), int32(r)}, 4, "")
				for i, v := range preset {
					m.SetRegister(Register(i), v)
				}

				if !m.Step() {
					t.Fatalf("Step() = false, status %v", m.Status())
				}

				want := preset
				switch op {
				case OpAdd:
					want[RegA] = preset[RegA] + preset[r]
				case OpSub:
					want[RegA] = preset[RegA] - preset[r]
				case OpMul:
					want[RegA] = preset[RegA] * preset[r]
				}
				wantRegisters(t, m, want)
				if m.IP() != 2 {
					t.Errorf("IP() = %d, want 2", m.IP())
				}
			})
		}
	}
}

// TestArithmeticWraps tests two's complement overflow.
func TestArithmeticWraps(t *testing.T) {
	m, _ := newTestMachine(t, []int32{2, 1, 6, 2, 5, 3}, 4, "")
	m.SetRegister(RegA, math.MaxInt32)
	m.SetRegister(RegB, 1)
	m.SetRegister(RegC, math.MaxInt32)
	m.SetRegister(RegD, -1)

	m.Step() // add B
	if m.Register(RegA) != math.MinInt32 {
		t.Errorf("A = %d, want %d", m.Register(RegA), int32(math.MinInt32))
	}
	m.Step() // inc C
	if m.Register(RegC) != math.MinInt32 {
		t.Errorf("C = %d, want %d", m.Register(RegC), int32(math.MinInt32))
	}
	m.Step() // div D
	if m.Register(RegA) != math.MinInt32 {
		t.Errorf("MinInt32 / -1 = %d, want %d", m.Register(RegA), int32(math.MinInt32))
	}
	wantStatus(t, m, StatusOK)
}

// TestDiv tests truncating division and division by zero.
func TestDiv(t *testing.T) {
	tests := []struct {
		a, b, want int32
	}{
		{7, 2, 3},
		{-7, 2, -3},
		{7, -2, -3},
		{-8, -2, 4},
	}
	for _, tt := range tests {
		m, _ := newTestMachine(t, []int32{5, 1}, 4, "")
		m.SetRegister(RegA, tt.a)
		m.SetRegister(RegB, tt.b)
		m.Step()
		if m.Register(RegA) != tt.want {
			t.Errorf("%d / %d = %d, want %d", tt.a, tt.b, m.Register(RegA), tt.want)
		}
	}

	m, _ := newTestMachine(t, []int32{5, 1}, 4, "")
	m.SetRegister(RegA, 9)
	if m.Step() {
		t.Error("Step() = true, want false")
	}
	wantStatus(t, m, StatusDivByZero)
	if m.Register(RegA) != 9 {
		t.Errorf("A = %d, want 9 (unchanged)", m.Register(RegA))
	}
	if m.IP() != 1 {
		t.Errorf("IP() = %d, want 1", m.IP())
	}
}

// TestIncDecMovr tests the single register instructions.
func TestIncDecMovr(t *testing.T) {
	m, _ := newTestMachine(t, []int32{
		9, 3, -20, // movr D, -20
		6, 3, // inc D
		7, 1, // dec B
		16, 3, 1, // swap D, B
		1,
	}, 4, "")

	m.Run(100)
	wantStatus(t, m, StatusHalted)
	wantRegisters(t, m, [NumRegisters]int32{0, -19, 0, -1})
}

// TestIllegalOperand tests register validation inside handlers.
func TestIllegalOperand(t *testing.T) {
	tests := []struct {
		name    string
		program []int32
		a       int32
		wantIP  int32
	}{
		{"add", []int32{2, 4}, 0, 1},
		{"negative register", []int32{6, -1}, 0, 1},
		{"movr", []int32{9, 7, 1}, 0, 1},
		{"load", []int32{10, 9, 0}, 0, 1},
		{"swap first", []int32{16, 5, 0}, 0, 2},
		{"swap second", []int32{16, 0, 5}, 0, 2},
		{"push", []int32{17, 4}, 0, 1},
		{"put negative", []int32{15, 0}, -1, 1},
		{"put too large", []int32{15, 0}, 256, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, out := newTestMachine(t, tt.program, 4, "")
			m.SetRegister(RegA, tt.a)
			if m.Step() {
				t.Fatal("Step() = true, want false")
			}
			wantStatus(t, m, StatusIllegalOperand)
			if m.IP() != tt.wantIP {
				t.Errorf("IP() = %d, want %d", m.IP(), tt.wantIP)
			}
			if out.Len() != 0 {
				t.Errorf("unexpected output %q", out.String())
			}
		})
	}
}

// TestFetchErrors tests illegal opcodes and running out of the code region.
func TestFetchErrors(t *testing.T) {
	t.Run("opcode too large", func(t *testing.T) {
		m, _ := newTestMachine(t, []int32{NumOpcodes}, 4, "")
		if n := m.Run(10); n != -1 {
			t.Errorf("Run() = %d, want -1", n)
		}
		wantStatus(t, m, StatusIllegalInstruction)
	})

	t.Run("negative opcode", func(t *testing.T) {
		m, _ := newTestMachine(t, []int32{0, -1}, 4, "")
		if n := m.Run(10); n != -2 {
			t.Errorf("Run() = %d, want -2", n)
		}
		wantStatus(t, m, StatusIllegalInstruction)
		if m.IP() != 1 {
			t.Errorf("IP() = %d, want 1", m.IP())
		}
	})

	t.Run("zero cells run into the stack", func(t *testing.T) {
		// One nop, 1024 stack cells: memory is 2048 cells and code ends at 1024.
		m, _ := newTestMachine(t, []int32{0}, 1024, "")
		if n := m.Run(5000); n != -1025 {
			t.Errorf("Run() = %d, want -1025", n)
		}
		wantStatus(t, m, StatusInvalidAddress)
		if m.IP() != 1024 {
			t.Errorf("IP() = %d, want 1024", m.IP())
		}
	})

	t.Run("operand past end of memory", func(t *testing.T) {
		program := make([]int32, 1024)
		program[1023] = int32(OpAdd)
		m, _ := newTestMachine(t, program, 0, "")
		if n := m.Run(5000); n != -1024 {
			t.Errorf("Run() = %d, want -1024", n)
		}
		wantStatus(t, m, StatusInvalidAddress)
	})
}

// TestLoop tests both branches of loop.
func TestLoop(t *testing.T) {
	t.Run("C zero skips target", func(t *testing.T) {
		m, _ := newTestMachine(t, []int32{8, 100, 1}, 4, "")
		if !m.Step() {
			t.Fatalf("Step() = false, status %v", m.Status())
		}
		if m.IP() != 2 {
			t.Errorf("IP() = %d, want 2", m.IP())
		}
	})

	t.Run("C nonzero jumps", func(t *testing.T) {
		m, _ := newTestMachine(t, []int32{8, 100, 1}, 4, "")
		m.SetRegister(RegC, 1)
		if !m.Step() {
			t.Fatalf("Step() = false, status %v", m.Status())
		}
		if m.IP() != 100 {
			t.Errorf("IP() = %d, want 100", m.IP())
		}
	})

	t.Run("bad target fails at next fetch", func(t *testing.T) {
		m, _ := newTestMachine(t, []int32{8, -5}, 4, "")
		m.SetRegister(RegC, 1)
		if !m.Step() {
			t.Fatalf("Step() = false, status %v", m.Status())
		}
		wantStatus(t, m, StatusOK)
		if m.Step() {
			t.Error("Step() = true, want false")
		}
		wantStatus(t, m, StatusInvalidAddress)
	})

	t.Run("countdown", func(t *testing.T) {
		m, _ := newTestMachine(t, []int32{
			9, 2, 3, // movr C, 3
			9, 0, 0, // movr A, 0
			6, 0, // 6: inc A
			7, 2, // dec C
			8, 6, // loop 6
			1,
		}, 4, "")
		if n := m.Run(100); n != 12 {
			t.Errorf("Run() = %d, want 12", n)
		}
		wantRegisters(t, m, [NumRegisters]int32{3, 0, 0, 0})
	})
}

// TestRunBudget tests that Run stops after the requested number of steps.
func TestRunBudget(t *testing.T) {
	m, _ := newTestMachine(t, []int32{9, 2, 1, 8, 3}, 4, "")

	if n := m.Run(10); n != 10 {
		t.Errorf("Run(10) = %d, want 10", n)
	}
	wantStatus(t, m, StatusOK)
	if n := m.Run(5); n != 5 {
		t.Errorf("Run(5) = %d, want 5", n)
	}
	if n := m.Run(0); n != 0 {
		t.Errorf("Run(0) = %d, want 0", n)
	}
}

// TestPushFull tests pushing onto a full stack.
func TestPushFull(t *testing.T) {
	m, _ := newTestMachine(t, []int32{17, 0, 17, 0, 1}, 1, "")
	m.SetRegister(RegA, 3)

	if n := m.Run(10); n != -2 {
		t.Errorf("Run() = %d, want -2", n)
	}
	wantStatus(t, m, StatusInvalidStackOperation)
	if m.StackSize() != 1 {
		t.Errorf("StackSize() = %d, want 1", m.StackSize())
	}
	if diff := cmp.Diff([]int32{3}, m.Stack()); diff != "" {
		t.Errorf("stack mismatch (-want +got):\n%s", diff)
	}
}

// TestPopEmpty tests popping an empty stack.
func TestPopEmpty(t *testing.T) {
	m, _ := newTestMachine(t, []int32{18, 0}, 4, "")
	m.SetRegister(RegA, 11)

	if m.Step() {
		t.Error("Step() = true, want false")
	}
	wantStatus(t, m, StatusInvalidStackOperation)
	if m.Register(RegA) != 11 {
		t.Errorf("A = %d, want 11", m.Register(RegA))
	}
}

// TestPushPop tests that a pushed value comes back out of pop.
func TestPushPop(t *testing.T) {
	values := []int32{0, 1, -1, math.MaxInt32, math.MinInt32, 424242}
	for src := RegA; src <= RegD; src++ {
		dst := (src + 1) % NumRegisters
		for _, v := range values {
			m, _ := newTestMachine(t, []int32{17, int32(src), 18, int32(dst), 1}, 2, "")
			m.SetRegister(src, v)
			m.Run(10)
			if m.Register(dst) != v {
				t.Errorf("push %v / pop %v: got %d, want %d", src, dst, m.Register(dst), v)
			}
			if m.StackSize() != 0 {
				t.Errorf("StackSize() = %d, want 0", m.StackSize())
			}
		}
	}
}

// TestPopClearsCell tests that popped cells are zeroed.
func TestPopClearsCell(t *testing.T) {
	m, _ := newTestMachine(t, []int32{17, 0, 18, 1, 1}, 2, "")
	m.SetRegister(RegA, 5)
	m.Run(10)

	if m.Register(RegB) != 5 {
		t.Errorf("B = %d, want 5", m.Register(RegB))
	}
	if got := m.mem[m.stackBottom]; got != 0 {
		t.Errorf("vacated cell = %d, want 0", got)
	}
}

// TestStoreLoad tests D relative addressing within the live stack.
func TestStoreLoad(t *testing.T) {
	// push A three times: the live stack is [c, b, a] top first.
	prefix := []int32{17, 0, 6, 0, 17, 0, 6, 0, 17, 0}

	tests := []struct {
		name   string
		d      int32
		offset int32
		want   int32
	}{
		{"top", 0, 0, 3},
		{"middle", 0, 1, 2},
		{"bottom", 0, 2, 1},
		{"D selects", 2, 0, 1},
		{"negative offset", 2, -1, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			program := append(append([]int32{}, prefix...), 10, 1, tt.offset, 1)
			m, _ := newTestMachine(t, program, 8, "")
			m.SetRegister(RegA, 1)
			m.SetRegister(RegD, tt.d)
			m.Run(100)
			wantStatus(t, m, StatusHalted)
			if m.Register(RegB) != tt.want {
				t.Errorf("B = %d, want %d", m.Register(RegB), tt.want)
			}
		})
	}

	t.Run("store then load", func(t *testing.T) {
		for off := int32(0); off < 3; off++ {
			program := append(append([]int32{}, prefix...),
				11, 2, off, // store C, off
				10, 1, off, // load B, off
				1)
			m, _ := newTestMachine(t, program, 8, "")
			m.SetRegister(RegA, 1)
			m.SetRegister(RegC, -77)
			m.Run(100)
			if m.Register(RegB) != -77 {
				t.Errorf("offset %d: B = %d, want -77", off, m.Register(RegB))
			}
			if m.StackSize() != 3 {
				t.Errorf("StackSize() = %d, want 3", m.StackSize())
			}
		}
	})
}

// TestStoreLoadOutsideStack tests the live window bounds.
func TestStoreLoadOutsideStack(t *testing.T) {
	tests := []struct {
		name    string
		program []int32
		d       int32
	}{
		{"load from empty stack", []int32{10, 0, 0}, 0},
		{"store to empty stack", []int32{11, 0, 0}, 0},
		{"below the top", []int32{17, 0, 10, 0, -1}, 0},
		{"past the bottom", []int32{17, 0, 10, 0, 1}, 0},
		{"D past the bottom", []int32{17, 0, 10, 0, 0}, 1},
		{"overflowing D", []int32{17, 0, 10, 0, math.MaxInt32}, math.MaxInt32},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newTestMachine(t, tt.program, 4, "")
			m.SetRegister(RegD, tt.d)
			if n := m.Run(10); n >= 0 {
				t.Errorf("Run() = %d, want negative", n)
			}
			wantStatus(t, m, StatusInvalidStackOperation)
		})
	}
}

// TestInput tests in and get.
func TestInput(t *testing.T) {
	t.Run("integers", func(t *testing.T) {
		m, _ := newTestMachine(t, []int32{12, 0, 12, 1, 12, 2, 1}, 4, "  -42\n+17 9x")
		m.Run(10)
		wantStatus(t, m, StatusHalted)
		wantRegisters(t, m, [NumRegisters]int32{-42, 17, 9, 0})
	})

	t.Run("bytes", func(t *testing.T) {
		m, _ := newTestMachine(t, []int32{13, 0, 13, 1, 1}, 4, "h\xff")
		m.Run(10)
		wantRegisters(t, m, [NumRegisters]int32{'h', 0xff, 0, 0})
	})

	t.Run("integer then byte", func(t *testing.T) {
		m, _ := newTestMachine(t, []int32{12, 0, 13, 1, 1}, 4, "12;")
		m.Run(10)
		wantRegisters(t, m, [NumRegisters]int32{12, ';', 0, 0})
	})

	for _, input := range []string{"abc", "-", "+ 1", "99999999999"} {
		t.Run("malformed "+input, func(t *testing.T) {
			m, _ := newTestMachine(t, []int32{12, 0, 1}, 4, input)
			if n := m.Run(10); n != -1 {
				t.Errorf("Run() = %d, want -1", n)
			}
			wantStatus(t, m, StatusIOError)
		})
	}
}

// TestInputEOF tests that end of input is not an error.
func TestInputEOF(t *testing.T) {
	tests := []struct {
		op    Opcode
		input string
	}{
		{OpIn, ""},
		{OpIn, "  \n"},
		{OpGet, ""},
	}

	for _, tt := range tests {
		t.Run(tt.op.String(), func(t *testing.T) {
			m, _ := newTestMachine(t, []int32{int32(tt.op), 1}, 4, tt.input)
			m.SetRegister(RegB, 5)
			m.SetRegister(RegC, 5)
			if !m.Step() {
				t.Fatalf("Step() = false, status %v", m.Status())
			}
			wantRegisters(t, m, [NumRegisters]int32{0, -1, 0, 0})
			if m.IP() != 2 {
				t.Errorf("IP() = %d, want 2", m.IP())
			}
		})
	}
}

// TestOutput tests out and put.
func TestOutput(t *testing.T) {
	m, out := newTestMachine(t, []int32{14, 0, 15, 1, 14, 2, 15, 3, 1}, 4, "")
	m.SetRegister(RegA, -5)
	m.SetRegister(RegB, 'H')
	m.SetRegister(RegC, math.MinInt32)
	m.SetRegister(RegD, '\n')
	m.Run(10)

	if want := "-5H-2147483648\n"; out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("closed")
}

// TestOutputError tests that a failing writer stops the machine.
func TestOutputError(t *testing.T) {
	mem, err := LoadMemory(bytes.NewReader(EncodeCells([]int32{14, 0, 1})), 4)
	if err != nil {
		t.Fatalf("LoadMemory() failed: %v", err)
	}
	m := NewMachine(mem, Options{Output: failingWriter{}})
	if n := m.Run(10); n != -1 {
		t.Errorf("Run() = %d, want -1", n)
	}
	wantStatus(t, m, StatusIOError)
}

// TestResetRearmsMachine pins down how Reset behaves: it re-arms the machine
// so the same program can run again with an empty, zeroed stack. Reset does
// not leave the stack unusable, which is the other way to read it.
func TestResetRearmsMachine(t *testing.T) {
	m, out := newTestMachine(t, []int32{17, 0, 17, 0, 14, 0, 1}, 4, "")
	m.SetRegister(RegA, 8)
	if n := m.Run(100); n != 4 {
		t.Fatalf("Run() = %d, want 4", n)
	}
	if m.StackSize() != 2 {
		t.Fatalf("StackSize() = %d, want 2", m.StackSize())
	}

	m.Reset()
	wantStatus(t, m, StatusOK)
	wantRegisters(t, m, [NumRegisters]int32{})
	if m.IP() != 0 || m.StackSize() != 0 {
		t.Errorf("IP() = %d, StackSize() = %d, want 0, 0", m.IP(), m.StackSize())
	}
	if m.StackCapacity() != 4 {
		t.Errorf("StackCapacity() = %d, want 4", m.StackCapacity())
	}

	// The old stack contents must not be visible through load.
	m.SetRegister(RegA, 1)
	if n := m.Run(100); n != 4 {
		t.Fatalf("second Run() = %d, want 4", n)
	}
	if out.String() != "81" {
		t.Errorf("output = %q, want %q", out.String(), "81")
	}
	if diff := cmp.Diff([]int32{1, 1}, m.Stack()); diff != "" {
		t.Errorf("stack mismatch (-want +got):\n%s", diff)
	}
}

// TestResetAfterError tests that Reset clears a sticky error status.
func TestResetAfterError(t *testing.T) {
	m, _ := newTestMachine(t, []int32{5, 1, 1}, 4, "")
	m.Run(10)
	wantStatus(t, m, StatusDivByZero)

	m.Reset()
	m.SetRegister(RegB, 1)
	if n := m.Run(10); n != 2 {
		t.Errorf("Run() = %d, want 2", n)
	}
	wantStatus(t, m, StatusHalted)
}

// TestClose tests that memory is released once.
func TestClose(t *testing.T) {
	m, _ := newTestMachine(t, []int32{0, 0, 1}, 4, "")
	if err := m.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if err := m.Close(); !errors.Is(err, ErrReleased) {
		t.Errorf("second Close() = %v, want ErrReleased", err)
	}
	if m.Step() {
		t.Error("Step() after Close = true, want false")
	}
	if n := m.Run(10); n != 0 {
		t.Errorf("Run() after Close = %d, want 0", n)
	}
	if m.Stack() != nil || m.Next() != nil {
		t.Error("Stack()/Next() after Close should be nil")
	}
}

// TestNewMachineDetachesMemory tests that the machine owns its cells.
func TestNewMachineDetachesMemory(t *testing.T) {
	mem, err := LoadMemory(bytes.NewReader(EncodeCells([]int32{1})), 4)
	if err != nil {
		t.Fatalf("LoadMemory() failed: %v", err)
	}
	NewMachine(mem, Options{})
	if mem.Cells != nil {
		t.Error("mem.Cells still set after NewMachine")
	}
}

// TestRegisterContract tests that invalid registers panic in the public API.
func TestRegisterContract(t *testing.T) {
	m, _ := newTestMachine(t, []int32{1}, 4, "")
	defer func() {
		if recover() == nil {
			t.Error("Register(4) did not panic")
		}
	}()
	m.Register(Register(4))
}

// TestNext tests instruction inspection.
func TestNext(t *testing.T) {
	m, _ := newTestMachine(t, []int32{9, 1, 5, 19, 1}, 4, "")
	if diff := cmp.Diff([]int32{9, 1, 5}, m.Next()); diff != "" {
		t.Errorf("Next() mismatch (-want +got):\n%s", diff)
	}
	m.Step()
	if diff := cmp.Diff([]int32{19}, m.Next()); diff != "" {
		t.Errorf("Next() mismatch (-want +got):\n%s", diff)
	}
}

// TestStatus tests status names and errors.
func TestStatus(t *testing.T) {
	if StatusHalted.Err() != nil || StatusOK.Err() != nil {
		t.Error("OK and HALTED should not map to errors")
	}
	if !errors.Is(StatusDivByZero.Err(), ErrDivisionByZero) {
		t.Errorf("StatusDivByZero.Err() = %v", StatusDivByZero.Err())
	}
	if StatusInvalidStackOperation.String() != "CPU_INVALID_STACK_OPERATION" {
		t.Errorf("String() = %q", StatusInvalidStackOperation.String())
	}
	for s := StatusOK; s <= StatusIOError; s++ {
		got, err := ParseStatus(s.String())
		if err != nil || got != s {
			t.Errorf("ParseStatus(%q) = %v, %v", s.String(), got, err)
		}
	}
	if got, err := ParseStatus("halted"); err != nil || got != StatusHalted {
		t.Errorf("ParseStatus(halted) = %v, %v", got, err)
	}
	if _, err := ParseStatus("bogus"); !errors.Is(err, ErrUnknownStatus) {
		t.Errorf("ParseStatus(bogus) = %v, want ErrUnknownStatus", err)
	}
}

// TestOpcodes tests the opcode table.
func TestOpcodes(t *testing.T) {
	tests := []struct {
		op       Opcode
		name     string
		operands int
	}{
		{OpNop, "nop", 0},
		{OpHalt, "halt", 0},
		{OpLoop, "loop", 1},
		{OpMovr, "movr", 2},
		{OpStore, "store", 2},
		{OpSwap, "swap", 2},
		{OpPop, "pop", 1},
	}
	for _, tt := range tests {
		if tt.op.String() != tt.name || tt.op.Operands() != tt.operands {
			t.Errorf("%d: got %s/%d, want %s/%d", tt.op, tt.op, tt.op.Operands(), tt.name, tt.operands)
		}
		if op, ok := ParseOpcode(strings.ToUpper(tt.name)); !ok || op != tt.op {
			t.Errorf("ParseOpcode(%q) = %v, %v", tt.name, op, ok)
		}
	}
	if _, err := ParseRegister("e"); err == nil {
		t.Error("ParseRegister(e) succeeded")
	}
	if r, err := ParseRegister("c"); err != nil || r != RegC {
		t.Errorf("ParseRegister(c) = %v, %v", r, err)
	}
}
