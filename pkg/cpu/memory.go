package cpu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"slices"
)

// Memory layout constants.
const (
	CellSize             = 4       // Bytes per memory cell
	BlockSize            = 4096    // Growth increment of the load buffer, in bytes
	DefaultStackCapacity = 256     // Stack cells reserved when none are requested
	MaxStackCapacity     = 1 << 24 // 64 MB of stack cells
)

// Loader errors.
var (
	ErrMisalignedProgram    = errors.New("program size is not a multiple of the cell size")
	ErrInvalidStackCapacity = errors.New("invalid stack capacity")
)

// Memory is a loaded program plus its reserved stack region.
//
// Cells [0, ProgramCells) hold the program. The stack occupies the
// StackCapacity highest cells, ending at StackBottom (the last cell).
// Everything past the program is zero after LoadMemory.
type Memory struct {
	Cells         []int32
	ProgramCells  int
	StackBottom   int
	StackCapacity int
}

// LoadMemory reads a program image from r and lays it out in front of a
// stack region of stackCapacity cells.
//
// Every four bytes become one cell in the order they were read; no byte
// order conversion is applied. The program length must be a multiple of
// CellSize.
func LoadMemory(r io.Reader, stackCapacity int) (*Memory, error) {
	if stackCapacity < 0 || stackCapacity > MaxStackCapacity {
		return nil, fmt.Errorf("%w: %d", ErrInvalidStackCapacity, stackCapacity)
	}

	data, err := readBlocks(r)
	if err != nil {
		return nil, fmt.Errorf("read program: %w", err)
	}
	if len(data)%CellSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrMisalignedProgram, len(data))
	}

	// make zero-fills everything between the program and the stack bottom.
	cells := make([]int32, layoutSize(len(data), stackCapacity)/CellSize)
	programCells := len(data) / CellSize
	for i := 0; i < programCells; i++ {
		cells[i] = int32(binary.NativeEndian.Uint32(data[i*CellSize:]))
	}

	return &Memory{
		Cells:         cells,
		ProgramCells:  programCells,
		StackBottom:   len(cells) - 1,
		StackCapacity: stackCapacity,
	}, nil
}

// Program returns the program cells.
func (m *Memory) Program() []int32 {
	return m.Cells[:m.ProgramCells]
}

// EncodeCells is the inverse of LoadMemory's decoding: it lays cells out as
// raw bytes in host order.
func EncodeCells(cells []int32) []byte {
	out := make([]byte, len(cells)*CellSize)
	for i, c := range cells {
		binary.NativeEndian.PutUint32(out[i*CellSize:], uint32(c))
	}
	return out
}

// readBlocks reads r to EOF, growing the buffer a block at a time.
func readBlocks(r io.Reader) ([]byte, error) {
	buf := make([]byte, 0, BlockSize)
	for {
		if len(buf) == cap(buf) {
			buf = slices.Grow(buf, BlockSize)
		}
		n, err := r.Read(buf[len(buf):cap(buf)])
		buf = buf[:len(buf)+n]
		if err == io.EOF {
			return buf, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// layoutSize returns the byte size of the memory for a program of
// programBytes: the program rounded up to whole blocks (at least one), plus
// as many further blocks as the stack needs.
func layoutSize(programBytes, stackCapacity int) int {
	size := BlockSize
	if programBytes > size {
		size = (programBytes + BlockSize - 1) / BlockSize * BlockSize
	}
	free, need := size-programBytes, stackCapacity*CellSize
	if free < need {
		size += (need - free + BlockSize - 1) / BlockSize * BlockSize
	}
	return size
}
