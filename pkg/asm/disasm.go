package asm

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fortiblox/cellvm/pkg/cpu"
)

// Format renders the instruction at the start of cells and returns the
// number of cells it spans. Cells that do not form a valid instruction are
// rendered as a .cell directive, so the text always assembles back to the
// same cells.
func Format(cells []int32) (string, int) {
	if len(cells) == 0 {
		return "", 0
	}
	op := cpu.Opcode(cells[0])
	if !op.Valid() || len(cells) < 1+len(operandKinds[op]) {
		return rawCells(cells[:1]), 1
	}

	kinds := operandKinds[op]
	n := 1 + len(kinds)
	ops := make([]string, len(kinds))
	for i, k := range kinds {
		v := cells[1+i]
		if k == reg {
			r := cpu.Register(v)
			if !r.Valid() {
				return rawCells(cells[:n]), n
			}
			ops[i] = r.String()
			continue
		}
		ops[i] = strconv.FormatInt(int64(v), 10)
	}

	if len(ops) == 0 {
		return op.String(), n
	}
	return op.String() + " " + strings.Join(ops, ", "), n
}

func rawCells(cells []int32) string {
	vals := make([]string, len(cells))
	for i, c := range cells {
		vals[i] = strconv.FormatInt(int64(c), 10)
	}
	return cellDirective + " " + strings.Join(vals, ", ")
}

// Disassemble writes one line per instruction, each followed by its cell
// index as a comment.
func Disassemble(w io.Writer, cells []int32) error {
	bw := bufio.NewWriter(w)
	for at := 0; at < len(cells); {
		text, n := Format(cells[at:])
		fmt.Fprintf(bw, "\t%-24s; %d\n", text, at)
		at += n
	}
	return bw.Flush()
}
