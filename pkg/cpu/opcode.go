package cpu

import (
	"fmt"
	"strings"
)

// Opcode is the numeric encoding of an instruction in its opcode cell.
type Opcode int32

// Instruction set. Operands occupy the cells right after the opcode.
const (
	OpNop   Opcode = 0  // nop
	OpHalt  Opcode = 1  // halt
	OpAdd   Opcode = 2  // add reg          A += reg
	OpSub   Opcode = 3  // sub reg          A -= reg
	OpMul   Opcode = 4  // mul reg          A *= reg
	OpDiv   Opcode = 5  // div reg          A /= reg
	OpInc   Opcode = 6  // inc reg
	OpDec   Opcode = 7  // dec reg
	OpLoop  Opcode = 8  // loop target      jump to target unless C == 0
	OpMovr  Opcode = 9  // movr reg, lit
	OpLoad  Opcode = 10 // load reg, off    reg = stack[D + off]
	OpStore Opcode = 11 // store reg, off   stack[D + off] = reg
	OpIn    Opcode = 12 // in reg           read decimal integer
	OpGet   Opcode = 13 // get reg          read byte
	OpOut   Opcode = 14 // out reg          write decimal integer
	OpPut   Opcode = 15 // put reg          write byte
	OpSwap  Opcode = 16 // swap reg, reg
	OpPush  Opcode = 17 // push reg
	OpPop   Opcode = 18 // pop reg
)

// NumOpcodes is the size of the instruction set.
const NumOpcodes = 19

var opcodeNames = [NumOpcodes]string{
	"nop", "halt", "add", "sub", "mul", "div", "inc", "dec", "loop", "movr",
	"load", "store", "in", "get", "out", "put", "swap", "push", "pop",
}

var opcodeOperands = [NumOpcodes]int{
	OpLoop:  1,
	OpAdd:   1,
	OpSub:   1,
	OpMul:   1,
	OpDiv:   1,
	OpInc:   1,
	OpDec:   1,
	OpMovr:  2,
	OpLoad:  2,
	OpStore: 2,
	OpIn:    1,
	OpGet:   1,
	OpOut:   1,
	OpPut:   1,
	OpSwap:  2,
	OpPush:  1,
	OpPop:   1,
}

// Valid reports whether op is part of the instruction set.
func (op Opcode) Valid() bool {
	return op >= 0 && op < NumOpcodes
}

// String returns the mnemonic.
func (op Opcode) String() string {
	if !op.Valid() {
		return fmt.Sprintf("Opcode(%d)", int32(op))
	}
	return opcodeNames[op]
}

// Operands returns how many operand cells follow the opcode.
func (op Opcode) Operands() int {
	if !op.Valid() {
		return 0
	}
	return opcodeOperands[op]
}

// ParseOpcode looks up a mnemonic, ignoring case.
func ParseOpcode(name string) (Opcode, bool) {
	name = strings.ToLower(name)
	for op, n := range opcodeNames {
		if n == name {
			return Opcode(op), true
		}
	}
	return 0, false
}

// Register identifies one of the four general registers.
type Register int32

// General registers.
const (
	RegA Register = iota
	RegB
	RegC
	RegD
)

// NumRegisters is the size of the register file.
const NumRegisters = 4

// Valid reports whether r names a register.
func (r Register) Valid() bool {
	return r >= RegA && r <= RegD
}

// String returns "A" through "D".
func (r Register) String() string {
	if !r.Valid() {
		return fmt.Sprintf("Register(%d)", int32(r))
	}
	return string(rune('A' + r))
}

// ParseRegister parses "A".."D", ignoring case.
func ParseRegister(s string) (Register, error) {
	if len(s) == 1 {
		if r := Register(strings.ToUpper(s)[0] - 'A'); r.Valid() {
			return r, nil
		}
	}
	return 0, fmt.Errorf("%w: register %q", ErrIllegalOperand, s)
}
