// cellvm: a small register machine and its tooling.
//
// This is the command line entry point. It runs and traces program images,
// assembles and disassembles them, keeps them in a program store, records
// runs in a journal and serves runs over gRPC.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fortiblox/cellvm/pkg/cpu"
	"github.com/fortiblox/cellvm/pkg/program"
	"github.com/fortiblox/cellvm/pkg/programstore"
)

// Version information
var (
	Version   = "0.1.0"
	GitCommit = "dev"
)

// Global flags
var (
	storePath   = flag.String("store", "", "Program store database file; enables @name and ID references")
	journalDir  = flag.String("journal", "", "Run journal directory; run and serve record into it")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

const usageText = `Usage: cellvm [flags] COMMAND [args]

Commands:
  run [stack_capacity] FILE     run a program to completion
  trace [stack_capacity] FILE   step through a program
  asm [-pack] SRC OUT           assemble source into an image
  disasm FILE                   list an image as assembly
  pack [-d] IN OUT              compress (or with -d expand) an image
  store put NAME FILE | get REF OUT | list | rm REF
  history [-limit N] [REF]      list recorded runs
  serve [-addr ADDR] [-dashboard-port N]
                                serve runs over gRPC
  remote [-addr ADDR] [stack_capacity] FILE
                                run a program on a server

FILE may be @name or a program ID when -store is given.

Flags:
`

func usage() {
	fmt.Fprint(flag.CommandLine.Output(), usageText)
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Printf("cellvm %s (%s)\n", Version, GitCommit)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	var code int
	switch cmd, rest := args[0], args[1:]; cmd {
	case "run":
		code = cmdRun(rest)
	case "trace":
		code = cmdTrace(rest)
	case "asm":
		code = cmdAsm(rest)
	case "disasm":
		code = cmdDisasm(rest)
	case "pack":
		code = cmdPack(rest)
	case "store":
		code = cmdStore(rest)
	case "history":
		code = cmdHistory(rest)
	case "serve":
		code = cmdServe(rest)
	case "remote":
		code = cmdRemote(rest)
	default:
		invalidArguments()
		code = 1
	}
	os.Exit(code)
}

func invalidArguments() {
	fmt.Println("Invalid arguments, run cellvm (run|trace) [stack_capacity] FILE")
}

// machineArgs parses "[stack_capacity] FILE".
func machineArgs(args []string) (int, string, bool) {
	if len(args) < 1 || len(args) > 2 {
		invalidArguments()
		return 0, "", false
	}
	if len(args) == 1 {
		return cpu.DefaultStackCapacity, args[0], true
	}

	n, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			fmt.Println("Stack capacity out of range")
		} else {
			fmt.Println("Invalid stack capacity")
		}
		return 0, "", false
	}
	if n < 0 || n > cpu.MaxStackCapacity {
		fmt.Println("Stack capacity out of range")
		return 0, "", false
	}
	return int(n), args[1], true
}

// openImage loads ref from the program store when it names a stored
// program, and from the file system otherwise.
func openImage(ref string) (*program.Image, error) {
	if *storePath != "" {
		if _, err := os.Stat(ref); strings.HasPrefix(ref, "@") || err != nil {
			s, err := openStore(true)
			if err != nil {
				return nil, err
			}
			defer s.Close()
			return s.Get(ref)
		}
	}
	return program.Open(ref)
}

func openStore(readOnly bool) (*programstore.Store, error) {
	if *storePath == "" {
		return nil, fmt.Errorf("no program store, use -store PATH")
	}
	config := programstore.DefaultConfig(*storePath)
	config.ReadOnly = readOnly
	return programstore.Open(config)
}
