package cpu

import (
	"errors"
	"fmt"
	"strings"
)

// Status is the execution state of a Machine.
type Status int

// Machine statuses. Anything other than StatusOK stops execution.
const (
	StatusOK Status = iota
	StatusHalted
	StatusIllegalInstruction
	StatusIllegalOperand
	StatusInvalidAddress
	StatusInvalidStackOperation
	StatusDivByZero
	StatusIOError
)

var statusNames = [...]string{
	StatusOK:                    "CPU_OK",
	StatusHalted:                "CPU_HALTED",
	StatusIllegalInstruction:    "CPU_ILLEGAL_INSTRUCTION",
	StatusIllegalOperand:        "CPU_ILLEGAL_OPERAND",
	StatusInvalidAddress:        "CPU_INVALID_ADDRESS",
	StatusInvalidStackOperation: "CPU_INVALID_STACK_OPERATION",
	StatusDivByZero:             "CPU_DIV_BY_ZERO",
	StatusIOError:               "CPU_IO_ERROR",
}

// Runtime errors, one per failing status.
var (
	ErrIllegalInstruction    = errors.New("illegal instruction")
	ErrIllegalOperand        = errors.New("illegal operand")
	ErrInvalidAddress        = errors.New("invalid address")
	ErrInvalidStackOperation = errors.New("invalid stack operation")
	ErrDivisionByZero        = errors.New("division by zero")
	ErrIO                    = errors.New("I/O error")
	ErrUnknownStatus         = errors.New("unknown status")
)

// String returns the status name, e.g. "CPU_HALTED".
func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("Status(%d)", int(s))
	}
	return statusNames[s]
}

// Failed reports whether s stopped the machine abnormally.
func (s Status) Failed() bool {
	return s != StatusOK && s != StatusHalted
}

// Err returns the error for a failing status, nil for StatusOK and
// StatusHalted.
func (s Status) Err() error {
	switch s {
	case StatusOK, StatusHalted:
		return nil
	case StatusIllegalInstruction:
		return ErrIllegalInstruction
	case StatusIllegalOperand:
		return ErrIllegalOperand
	case StatusInvalidAddress:
		return ErrInvalidAddress
	case StatusInvalidStackOperation:
		return ErrInvalidStackOperation
	case StatusDivByZero:
		return ErrDivisionByZero
	case StatusIOError:
		return ErrIO
	default:
		return fmt.Errorf("%w: %d", ErrUnknownStatus, int(s))
	}
}

// ParseStatus is the inverse of Status.String. The "CPU_" prefix and case
// are optional.
func ParseStatus(name string) (Status, error) {
	want := strings.ToUpper(name)
	if !strings.HasPrefix(want, "CPU_") {
		want = "CPU_" + want
	}
	for s, n := range statusNames {
		if n == want {
			return Status(s), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownStatus, name)
}
