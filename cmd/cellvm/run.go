package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"

	"github.com/fortiblox/cellvm/pkg/asm"
	"github.com/fortiblox/cellvm/pkg/cpu"
	"github.com/fortiblox/cellvm/pkg/executor"
	"github.com/fortiblox/cellvm/pkg/runlog"
)

func printState(w io.Writer, regs [cpu.NumRegisters]int32, stackSize int32) {
	fmt.Fprintf(w, "A: %d, B: %d, C: %d, D: %d\n",
		regs[cpu.RegA], regs[cpu.RegB], regs[cpu.RegC], regs[cpu.RegD])
	fmt.Fprintf(w, "Stack size: %d\n", stackSize)
}

func openJournal() (*runlog.Journal, error) {
	if *journalDir == "" {
		return nil, nil
	}
	return runlog.Open(runlog.DefaultConfig(*journalDir))
}

func cmdRun(args []string) int {
	capacity, ref, ok := machineArgs(args)
	if !ok {
		return 1
	}
	img, err := openImage(ref)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", ref, err)
		return 1
	}

	var config executor.Config
	journal, err := openJournal()
	if err != nil {
		log.Printf("Warning: run journal unavailable: %v", err)
	} else if journal != nil {
		defer journal.Close()
		config.Journal = journal
	}

	// Interrupting a long run still reports the machine state.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	out := bufio.NewWriter(os.Stdout)
	opts := executor.DefaultOptions()
	opts.StackCapacity = capacity
	opts.Input = os.Stdin
	opts.Output = out

	res, err := executor.New(config).Execute(ctx, img, opts)
	if res == nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", ref, err)
		return 1
	}
	if err != nil {
		log.Printf("Warning: %v", err)
	}
	out.Flush()

	printState(os.Stdout, res.Registers, res.StackSize)
	fmt.Printf("Run result: %d\n", res.Steps)
	return 0
}

func cmdTrace(args []string) int {
	capacity, ref, ok := machineArgs(args)
	if !ok {
		return 1
	}
	img, err := openImage(ref)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", ref, err)
		return 1
	}
	mem, err := img.Load(capacity)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", ref, err)
		return 1
	}

	// The prompt and the program share standard input.
	in := bufio.NewReader(os.Stdin)
	m := cpu.NewMachine(mem, cpu.Options{Input: in, Output: os.Stdout})
	defer m.Close()

	fmt.Println("Press Enter to execute the next instruction or type 'q' to quit.")
	for {
		c, err := in.ReadByte()
		if err != nil {
			return 0
		}
		switch c {
		case '\n':
			if next := m.Next(); next != nil {
				text, _ := asm.Format(next)
				fmt.Printf("%d: %s\n", m.IP(), text)
			}
			running := m.Step()
			printState(os.Stdout, m.Registers(), m.StackSize())
			if !running {
				fmt.Printf("Status: %v\n", m.Status())
				fmt.Println("finished")
				return 0
			}
		case 'q':
			return 0
		}
	}
}
