package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/fortiblox/cellvm/pkg/asm"
	"github.com/fortiblox/cellvm/pkg/cpu"
	"github.com/fortiblox/cellvm/pkg/program"
)

func cmdAsm(args []string) int {
	fs := flag.NewFlagSet("asm", flag.ExitOnError)
	pack := fs.Bool("pack", false, "Write a zstd-compressed image")
	fs.Parse(args)
	if fs.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "usage: cellvm asm [-pack] SRC OUT")
		return 1
	}
	src, dst := fs.Arg(0), fs.Arg(1)

	f, err := os.Open(src)
	if err != nil {
		log.Printf("Failed to open source: %v", err)
		return 1
	}
	defer f.Close()

	cells, err := asm.Assemble(f)
	if err != nil {
		log.Printf("%s: %v", src, err)
		return 1
	}
	img := program.FromCells(cells)

	data := img.Data
	if *pack {
		if data, err = img.Pack(); err != nil {
			log.Printf("Failed to pack image: %v", err)
			return 1
		}
	}
	if err := os.WriteFile(dst, data, 0644); err != nil {
		log.Printf("Failed to write image: %v", err)
		return 1
	}
	log.Printf("Assembled %d cells into %s (id %s)", len(cells), dst, img.ID)
	return 0
}

func cmdDisasm(args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: cellvm disasm FILE")
		return 1
	}
	img, err := openImage(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", args[0], err)
		return 1
	}
	mem, err := img.Load(0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", args[0], err)
		return 1
	}

	fmt.Printf("; %s, %d cells\n", img.ID, mem.ProgramCells)
	if err := asm.Disassemble(os.Stdout, mem.Program()); err != nil {
		log.Printf("Failed to write listing: %v", err)
		return 1
	}
	return 0
}

func cmdPack(args []string) int {
	fs := flag.NewFlagSet("pack", flag.ExitOnError)
	unpack := fs.Bool("d", false, "Expand a packed image instead")
	fs.Parse(args)
	if fs.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "usage: cellvm pack [-d] IN OUT")
		return 1
	}

	img, err := program.Open(fs.Arg(0))
	if err != nil {
		log.Printf("%v", err)
		return 1
	}

	data := img.Data
	if !*unpack {
		if data, err = img.Pack(); err != nil {
			log.Printf("Failed to pack image: %v", err)
			return 1
		}
	}
	if err := os.WriteFile(fs.Arg(1), data, 0644); err != nil {
		log.Printf("Failed to write image: %v", err)
		return 1
	}
	log.Printf("Wrote %d bytes (%d cells, id %s)", len(data), len(img.Data)/cpu.CellSize, img.ID)
	return 0
}
