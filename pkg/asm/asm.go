// Package asm translates between cellvm assembly text and program cells.
//
// Source is line oriented:
//
//	; comment
//	start:  movr C, 10      ; label, mnemonic, operands
//	        loop start
//	        .cell 7, -1     ; raw cells
//
// Register operands are A to D. Numeric operands take Go integer syntax
// (42, -7, 0x2a), a quoted character ('H') or a label, which stands for the
// cell index it was defined at. Mnemonics and registers are case
// insensitive; labels are not.
package asm

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"

	"github.com/fortiblox/cellvm/pkg/cpu"
)

var (
	ErrSyntax          = errors.New("syntax error")
	ErrUnknownMnemonic = errors.New("unknown mnemonic")
	ErrOperandCount    = errors.New("wrong number of operands")
	ErrDuplicateLabel  = errors.New("label already defined")
	ErrUndefinedLabel  = errors.New("undefined label")
)

// Error is an assembly error at a source line.
type Error struct {
	Line int
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type kind int

const (
	reg kind = iota
	num
)

// operandKinds lists the operand kinds of each opcode, in order.
var operandKinds = [cpu.NumOpcodes][]kind{
	cpu.OpAdd:   {reg},
	cpu.OpSub:   {reg},
	cpu.OpMul:   {reg},
	cpu.OpDiv:   {reg},
	cpu.OpInc:   {reg},
	cpu.OpDec:   {reg},
	cpu.OpLoop:  {num},
	cpu.OpMovr:  {reg, num},
	cpu.OpLoad:  {reg, num},
	cpu.OpStore: {reg, num},
	cpu.OpIn:    {reg},
	cpu.OpGet:   {reg},
	cpu.OpOut:   {reg},
	cpu.OpPut:   {reg},
	cpu.OpSwap:  {reg, reg},
	cpu.OpPush:  {reg},
	cpu.OpPop:   {reg},
}

const cellDirective = ".cell"

type unresolved struct {
	at    int    // cell index
	label string // symbol to patch in
	line  int
}

type parser struct {
	line   int
	labels map[string]int32
	unres  []unresolved
	cells  []int32
}

// Assemble reads assembly source from r and returns the program cells.
func Assemble(r io.Reader) ([]int32, error) {
	p := &parser{labels: make(map[string]int32)}

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		p.line++
		if err := p.doLine(sc.Text()); err != nil {
			return nil, &Error{Line: p.line, Err: err}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}

	if err := p.resolve(); err != nil {
		return nil, err
	}
	return p.cells, nil
}

// AssembleString is Assemble over a string.
func AssembleString(src string) ([]int32, error) {
	return Assemble(strings.NewReader(src))
}

func (p *parser) doLine(s string) error {
	if i := strings.IndexByte(s, ';'); i >= 0 && !inQuote(s, i) {
		s = s[:i]
	}
	s = strings.TrimSpace(s)

	if i := strings.IndexByte(s, ':'); i >= 0 {
		if name := strings.TrimSpace(s[:i]); isLabel(name) {
			if err := p.defLabel(name); err != nil {
				return err
			}
			s = strings.TrimSpace(s[i+1:])
		}
	}
	if s == "" {
		return nil
	}

	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
	if len(fields) == 0 {
		return fmt.Errorf("%w: %q", ErrSyntax, s)
	}
	mnemonic, operands := fields[0], fields[1:]

	if mnemonic == cellDirective {
		if len(operands) == 0 {
			return fmt.Errorf("%w: %s needs at least one value", ErrOperandCount, cellDirective)
		}
		for _, o := range operands {
			if err := p.number(o); err != nil {
				return err
			}
		}
		return nil
	}

	op, ok := cpu.ParseOpcode(mnemonic)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownMnemonic, mnemonic)
	}
	kinds := operandKinds[op]
	if len(operands) != len(kinds) {
		return fmt.Errorf("%w: %s takes %d, got %d", ErrOperandCount, op, len(kinds), len(operands))
	}

	p.cells = append(p.cells, int32(op))
	for i, o := range operands {
		if kinds[i] == reg {
			r, err := cpu.ParseRegister(o)
			if err != nil {
				return fmt.Errorf("%w: bad register %q", ErrSyntax, o)
			}
			p.cells = append(p.cells, int32(r))
			continue
		}
		if err := p.number(o); err != nil {
			return err
		}
	}
	return nil
}

func (p *parser) defLabel(name string) error {
	if _, ok := p.labels[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateLabel, name)
	}
	p.labels[name] = int32(len(p.cells))
	return nil
}

// number appends a numeric operand, deferring label references.
func (p *parser) number(s string) error {
	if strings.HasPrefix(s, "'") {
		u, err := strconv.Unquote(s)
		if err != nil || len([]rune(u)) != 1 {
			return fmt.Errorf("%w: bad character literal %s", ErrSyntax, s)
		}
		p.cells = append(p.cells, int32([]rune(u)[0]))
		return nil
	}

	n, err := strconv.ParseInt(s, 0, 32)
	if err == nil {
		p.cells = append(p.cells, int32(n))
		return nil
	}
	if errors.Is(err, strconv.ErrRange) {
		return fmt.Errorf("%w: %s out of range", ErrSyntax, s)
	}

	if !isLabel(s) {
		return fmt.Errorf("%w: bad operand %q", ErrSyntax, s)
	}
	p.unres = append(p.unres, unresolved{at: len(p.cells), label: s, line: p.line})
	p.cells = append(p.cells, 0)
	return nil
}

func (p *parser) resolve() error {
	for _, u := range p.unres {
		v, ok := p.labels[u.label]
		if !ok {
			return &Error{Line: u.line, Err: fmt.Errorf("%w: %s", ErrUndefinedLabel, u.label)}
		}
		p.cells[u.at] = v
	}
	return nil
}

// isLabel reports whether s can name a label. Register names are reserved.
func isLabel(s string) bool {
	if s == "" {
		return false
	}
	if _, err := cpu.ParseRegister(s); err == nil {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || r == '.' || unicode.IsLetter(r):
		case i > 0 && unicode.IsDigit(r):
		default:
			return false
		}
	}
	return true
}

// inQuote reports whether byte i of s sits inside a character literal.
func inQuote(s string, i int) bool {
	return i > 0 && i+1 < len(s) && s[i-1] == '\'' && s[i+1] == '\''
}
