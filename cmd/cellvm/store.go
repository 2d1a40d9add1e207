package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fortiblox/cellvm/internal/types"
	"github.com/fortiblox/cellvm/pkg/cpu"
	"github.com/fortiblox/cellvm/pkg/program"
	"github.com/fortiblox/cellvm/pkg/programstore"
	"github.com/fortiblox/cellvm/pkg/runlog"
)

func cmdStore(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: cellvm -store PATH store put NAME FILE | get REF OUT | list | rm REF")
		return 1
	}
	sub, args := args[0], args[1:]

	s, err := openStore(sub == "get" || sub == "list")
	if err != nil {
		log.Printf("Failed to open program store: %v", err)
		return 1
	}
	defer s.Close()

	switch {
	case sub == "put" && len(args) == 2:
		img, err := program.Open(args[1])
		if err != nil {
			log.Printf("%v", err)
			return 1
		}
		if err := s.Put(args[0], img); err != nil {
			log.Printf("Failed to store %s: %v", args[0], err)
			return 1
		}
		fmt.Printf("%s %s\n", args[0], img.ID)

	case sub == "get" && len(args) == 2:
		img, err := s.Get(args[0])
		if err != nil {
			log.Printf("%v", err)
			return 1
		}
		if err := os.WriteFile(args[1], img.Data, 0644); err != nil {
			log.Printf("Failed to write image: %v", err)
			return 1
		}

	case sub == "list" && len(args) == 0:
		entries, err := s.List()
		if err != nil {
			log.Printf("Failed to list programs: %v", err)
			return 1
		}
		printEntries(entries)

	case sub == "rm" && len(args) == 1:
		if err := s.Delete(args[0]); err != nil {
			log.Printf("%v", err)
			return 1
		}

	default:
		fmt.Fprintf(os.Stderr, "unknown store command %q or wrong arguments\n", sub)
		return 1
	}
	return 0
}

func printEntries(entries []programstore.Entry) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tID\tCELLS\tADDED")
	for _, e := range entries {
		name := e.Name
		if name == "" {
			name = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", name, e.ID, e.Size/cpu.CellSize, e.Added.Local().Format(time.DateTime))
	}
	tw.Flush()
}

func cmdHistory(args []string) int {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	limit := fs.Int("limit", 20, "Maximum number of runs to list (0 = all)")
	fs.Parse(args)

	j, err := openJournal()
	if err != nil {
		log.Printf("Failed to open run journal: %v", err)
		return 1
	}
	if j == nil {
		fmt.Fprintln(os.Stderr, "no run journal, use -journal DIR")
		return 1
	}
	defer j.Close()

	var recs []*runlog.Record
	if fs.NArg() == 1 {
		id, err := resolveID(fs.Arg(0))
		if err != nil {
			log.Printf("%v", err)
			return 1
		}
		recs, err = j.ForProgram(id, *limit)
		if err != nil {
			log.Printf("Failed to read journal: %v", err)
			return 1
		}
	} else {
		if recs, err = j.Recent(*limit); err != nil {
			log.Printf("Failed to read journal: %v", err)
			return 1
		}
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tSTARTED\tPROGRAM\tSTATUS\tSTEPS\tDURATION")
	for _, r := range recs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%s\n",
			r.Seq, r.Started.Local().Format(time.DateTime), r.ProgramID.Short(), r.Status, r.Steps, r.Duration)
	}
	tw.Flush()
	fmt.Printf("%d of %d runs\n", len(recs), j.Count())
	return 0
}

// resolveID turns a history filter into a program ID: a stored name or ID,
// a base58 ID, or an image file.
func resolveID(ref string) (types.ProgramID, error) {
	if *storePath != "" {
		if s, err := openStore(true); err == nil {
			defer s.Close()
			if id, err := s.Resolve(ref); err == nil {
				return id, nil
			}
		}
	}
	if id, err := types.ProgramIDFromBase58(ref); err == nil {
		return id, nil
	}
	img, err := program.Open(ref)
	if err != nil {
		return types.ProgramID{}, err
	}
	return img.ID, nil
}
