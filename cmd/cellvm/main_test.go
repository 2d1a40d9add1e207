package main

import (
	"bytes"
	"testing"

	"github.com/fortiblox/cellvm/pkg/cpu"
)

func TestMachineArgs(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		capacity int
		file     string
		ok       bool
	}{
		{"file only", []string{"prog.bin"}, cpu.DefaultStackCapacity, "prog.bin", true},
		{"capacity and file", []string{"16", "prog.bin"}, 16, "prog.bin", true},
		{"zero capacity", []string{"0", "prog.bin"}, 0, "prog.bin", true},
		{"max capacity", []string{"16777216", "prog.bin"}, cpu.MaxStackCapacity, "prog.bin", true},
		{"no arguments", nil, 0, "", false},
		{"too many arguments", []string{"1", "2", "3"}, 0, "", false},
		{"not a number", []string{"lots", "prog.bin"}, 0, "", false},
		{"negative", []string{"-1", "prog.bin"}, 0, "", false},
		{"above max", []string{"16777217", "prog.bin"}, 0, "", false},
		{"overflow", []string{"99999999999999999999", "prog.bin"}, 0, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			capacity, file, ok := machineArgs(tt.args)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			if capacity != tt.capacity {
				t.Errorf("capacity = %d, want %d", capacity, tt.capacity)
			}
			if file != tt.file {
				t.Errorf("file = %q, want %q", file, tt.file)
			}
		})
	}
}

func TestPrintState(t *testing.T) {
	var buf bytes.Buffer
	printState(&buf, [cpu.NumRegisters]int32{1, -2, 3, 4}, 5)
	want := "A: 1, B: -2, C: 3, D: 4\nStack size: 5\n"
	if buf.String() != want {
		t.Errorf("printState() = %q, want %q", buf.String(), want)
	}
}
