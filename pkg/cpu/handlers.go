package cpu

import (
	"errors"
	"io"
	"strconv"
)

// instructions maps each opcode to its handler.
//
// A handler reads its operands by advancing ip. On success it leaves ip on
// the next opcode; on failure it sets the status and leaves ip where it
// stopped.
var instructions = [NumOpcodes]func(*Machine){
	OpNop:   (*Machine).nop,
	OpHalt:  (*Machine).halt,
	OpAdd:   (*Machine).add,
	OpSub:   (*Machine).sub,
	OpMul:   (*Machine).mul,
	OpDiv:   (*Machine).div,
	OpInc:   (*Machine).inc,
	OpDec:   (*Machine).dec,
	OpLoop:  (*Machine).loop,
	OpMovr:  (*Machine).movr,
	OpLoad:  (*Machine).load,
	OpStore: (*Machine).store,
	OpIn:    (*Machine).in,
	OpGet:   (*Machine).get,
	OpOut:   (*Machine).out,
	OpPut:   (*Machine).put,
	OpSwap:  (*Machine).swap,
	OpPush:  (*Machine).push,
	OpPop:   (*Machine).pop,
}

var errMalformedInt = errors.New("malformed integer")

// operand moves ip to the next cell and returns its value.
func (m *Machine) operand() (int32, bool) {
	m.ip++
	if int(m.ip) >= len(m.mem) {
		m.status = StatusInvalidAddress
		return 0, false
	}
	return m.mem[m.ip], true
}

// checkReg validates a register decoded from memory.
func (m *Machine) checkReg(v int32) (Register, bool) {
	r := Register(v)
	if !r.Valid() {
		m.status = StatusIllegalOperand
		return 0, false
	}
	return r, true
}

// regOperand reads and validates a register operand.
func (m *Machine) regOperand() (Register, bool) {
	v, ok := m.operand()
	if !ok {
		return 0, false
	}
	return m.checkReg(v)
}

// stackOperand reads a register and an offset operand and resolves the
// offset, relative to D, to a cell in the live stack.
func (m *Machine) stackOperand() (Register, int, bool) {
	r, ok := m.regOperand()
	if !ok {
		return 0, 0, false
	}
	off, ok := m.operand()
	if !ok {
		return 0, 0, false
	}

	top := int64(m.stackBottom) - int64(m.stackSize) + 1
	addr := top + int64(m.regs[RegD]) + int64(off)
	if addr < top || addr > int64(m.stackBottom) {
		m.status = StatusInvalidStackOperation
		return 0, 0, false
	}
	return r, int(addr), true
}

// endOfInput is the in/get behaviour at end of stream.
func (m *Machine) endOfInput(r Register) {
	m.regs[RegC] = 0
	m.regs[r] = -1
	m.ip++
}

func (m *Machine) nop() {
	m.ip++
}

func (m *Machine) halt() {
	m.status = StatusHalted
}

func (m *Machine) add() {
	r, ok := m.regOperand()
	if !ok {
		return
	}
	m.regs[RegA] += m.regs[r]
	m.ip++
}

func (m *Machine) sub() {
	r, ok := m.regOperand()
	if !ok {
		return
	}
	m.regs[RegA] -= m.regs[r]
	m.ip++
}

func (m *Machine) mul() {
	r, ok := m.regOperand()
	if !ok {
		return
	}
	m.regs[RegA] *= m.regs[r]
	m.ip++
}

func (m *Machine) div() {
	r, ok := m.regOperand()
	if !ok {
		return
	}
	if m.regs[r] == 0 {
		m.status = StatusDivByZero
		return
	}
	m.regs[RegA] /= m.regs[r]
	m.ip++
}

func (m *Machine) inc() {
	r, ok := m.regOperand()
	if !ok {
		return
	}
	m.regs[r]++
	m.ip++
}

func (m *Machine) dec() {
	r, ok := m.regOperand()
	if !ok {
		return
	}
	m.regs[r]--
	m.ip++
}

// loop jumps to its target unless C is zero. The target is checked by the
// next fetch.
func (m *Machine) loop() {
	if m.regs[RegC] == 0 {
		m.ip += 2
		return
	}
	target, ok := m.operand()
	if !ok {
		return
	}
	m.ip = target
}

func (m *Machine) movr() {
	r, ok := m.regOperand()
	if !ok {
		return
	}
	lit, ok := m.operand()
	if !ok {
		return
	}
	m.regs[r] = lit
	m.ip++
}

func (m *Machine) load() {
	r, addr, ok := m.stackOperand()
	if !ok {
		return
	}
	m.regs[r] = m.mem[addr]
	m.ip++
}

func (m *Machine) store() {
	r, addr, ok := m.stackOperand()
	if !ok {
		return
	}
	m.mem[addr] = m.regs[r]
	m.ip++
}

func (m *Machine) in() {
	r, ok := m.regOperand()
	if !ok {
		return
	}
	v, err := m.readInt()
	switch {
	case err == io.EOF:
		m.endOfInput(r)
	case err != nil:
		m.status = StatusIOError
	default:
		m.regs[r] = v
		m.ip++
	}
}

func (m *Machine) get() {
	r, ok := m.regOperand()
	if !ok {
		return
	}
	b, err := m.input.ReadByte()
	switch {
	case err == io.EOF:
		m.endOfInput(r)
	case err != nil:
		m.status = StatusIOError
	default:
		m.regs[r] = int32(b)
		m.ip++
	}
}

func (m *Machine) out() {
	r, ok := m.regOperand()
	if !ok {
		return
	}
	if _, err := m.output.Write(strconv.AppendInt(nil, int64(m.regs[r]), 10)); err != nil {
		m.status = StatusIOError
		return
	}
	m.ip++
}

func (m *Machine) put() {
	r, ok := m.regOperand()
	if !ok {
		return
	}
	c := m.regs[r]
	if c < 0 || c > 255 {
		m.status = StatusIllegalOperand
		return
	}
	if _, err := m.output.Write([]byte{byte(c)}); err != nil {
		m.status = StatusIOError
		return
	}
	m.ip++
}

// swap reads both operands before validating either.
func (m *Machine) swap() {
	v1, ok := m.operand()
	if !ok {
		return
	}
	v2, ok := m.operand()
	if !ok {
		return
	}
	r1, ok := m.checkReg(v1)
	if !ok {
		return
	}
	r2, ok := m.checkReg(v2)
	if !ok {
		return
	}
	m.regs[r1], m.regs[r2] = m.regs[r2], m.regs[r1]
	m.ip++
}

func (m *Machine) push() {
	r, ok := m.regOperand()
	if !ok {
		return
	}
	if int(m.stackSize) == m.StackCapacity() {
		m.status = StatusInvalidStackOperation
		return
	}
	m.mem[m.stackBottom-int(m.stackSize)] = m.regs[r]
	m.stackSize++
	m.ip++
}

func (m *Machine) pop() {
	r, ok := m.regOperand()
	if !ok {
		return
	}
	if m.stackSize <= 0 {
		m.status = StatusInvalidStackOperation
		return
	}
	m.stackSize--
	idx := m.stackBottom - int(m.stackSize)
	m.regs[r] = m.mem[idx]
	m.mem[idx] = 0
	m.ip++
}

// readInt scans one optionally signed decimal token, skipping leading white
// space. It returns io.EOF if the stream ends before the token starts and
// errMalformedInt if the token is not a 32-bit integer. The byte following
// the token is left unread.
func (m *Machine) readInt() (int32, error) {
	c, err := m.input.ReadByte()
	for err == nil && isSpace(c) {
		c, err = m.input.ReadByte()
	}
	if err != nil {
		return 0, err
	}

	tok := make([]byte, 0, 12)
	if c == '+' || c == '-' {
		tok = append(tok, c)
		c, err = m.input.ReadByte()
	}
	for err == nil && c >= '0' && c <= '9' {
		tok = append(tok, c)
		c, err = m.input.ReadByte()
	}
	switch {
	case err == nil:
		_ = m.input.UnreadByte()
	case err != io.EOF:
		return 0, err
	}

	n, perr := strconv.ParseInt(string(tok), 10, 32)
	if perr != nil {
		return 0, errMalformedInt
	}
	return int32(n), nil
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}
