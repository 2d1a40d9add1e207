package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fortiblox/cellvm/pkg/dashboard"
	"github.com/fortiblox/cellvm/pkg/remote"
	"github.com/fortiblox/cellvm/pkg/runlog"
)

func cmdServe(args []string) int {
	config := remote.DefaultConfig()
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	fs.StringVar(&config.Addr, "addr", config.Addr, "gRPC listen address")
	fs.Uint64Var(&config.MaxSteps, "max-steps", config.MaxSteps, "Instruction budget cap per run")
	fs.IntVar(&config.MaxOutput, "max-output", config.MaxOutput, "Output cap per run, in bytes")
	dashPort := fs.Int("dashboard-port", 0, "Serve the web dashboard on this port (0 = disabled)")
	dashBind := fs.String("dashboard-bind", "127.0.0.1", "Dashboard bind address")
	fs.Parse(args)

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Printf("Starting cellvm %s server", Version)

	journal, err := openJournal()
	if err != nil {
		log.Printf("Failed to open run journal: %v", err)
		return 1
	}
	if journal != nil {
		defer journal.Close()
		config.Journal = journal
		log.Printf("Recording runs in %s", *journalDir)
	}

	srv := remote.NewServer(config)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *dashPort != 0 {
		if err := startDashboard(ctx, srv, journal, *dashBind, *dashPort); err != nil {
			log.Printf("Failed to start dashboard: %v", err)
			return 1
		}
	}

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Printf("Received signal %v, shutting down...", sig)
		cancel()
		srv.Stop()
	}()

	if err := srv.ListenAndServe(); err != nil {
		log.Printf("Server error: %v", err)
		return 1
	}
	log.Printf("Served %d runs", srv.Runs())
	return 0
}

// startDashboard serves the dashboard in the background until ctx is done.
// The program store is opened read-only; other readers can share it.
func startDashboard(ctx context.Context, srv *remote.Server, journal *runlog.Journal, bind string, port int) error {
	dashConfig := dashboard.DefaultConfig()
	dashConfig.BindAddress = bind
	dashConfig.Port = port

	var runs dashboard.Runs
	if journal != nil {
		runs = journal
	}
	var programs dashboard.Programs
	if *storePath != "" {
		store, err := openStore(true)
		if err != nil {
			return err
		}
		go func() {
			<-ctx.Done()
			store.Close()
		}()
		programs = store
	}

	dash, err := dashboard.New(dashConfig, srv, runs, programs)
	if err != nil {
		return err
	}
	go func() {
		log.Printf("[DASHBOARD] Listening on http://%s", dash.Address())
		if err := dash.Start(ctx); err != nil {
			log.Printf("[DASHBOARD] Server error: %v", err)
		}
	}()
	return nil
}

func cmdRemote(args []string) int {
	fs := flag.NewFlagSet("remote", flag.ExitOnError)
	addr := fs.String("addr", "localhost"+remote.DefaultAddr, "Server address, or a comma separated list to fail over between")
	steps := fs.Uint64("steps", 0, "Instruction budget (0 = server limit)")
	input := fs.String("input", "", "File fed to the program's input (- for stdin)")
	timeout := fs.Duration("timeout", time.Minute, "Call timeout")
	fs.Parse(args)

	capacity, ref, ok := machineArgs(fs.Args())
	if !ok {
		return 1
	}
	img, err := openImage(ref)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", ref, err)
		return 1
	}

	var in []byte
	switch *input {
	case "":
	case "-":
		in, err = io.ReadAll(os.Stdin)
	default:
		in, err = os.ReadFile(*input)
	}
	if err != nil {
		log.Printf("Failed to read input: %v", err)
		return 1
	}

	poolConfig := remote.DefaultPoolConfig(strings.Split(*addr, ",")...)
	poolConfig.OnHealthChange = func(endpoint string, healthy bool) {
		if !healthy {
			log.Printf("[REMOTE] %s unavailable, trying next server", endpoint)
		}
	}
	pool, err := remote.NewPool(poolConfig)
	if err != nil {
		log.Printf("%v", err)
		return 1
	}
	defer pool.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	stackCapacity := int32(capacity)
	resp, err := pool.Run(ctx, &remote.RunRequest{
		Program:       img.Data,
		StackCapacity: &stackCapacity,
		Input:         in,
		Steps:         *steps,
	})
	if err != nil {
		log.Printf("Remote run failed: %v", err)
		return 1
	}

	os.Stdout.Write(resp.Output)
	printState(os.Stdout, resp.Registers, resp.StackSize)
	fmt.Printf("Status: %s\n", resp.Status)
	fmt.Printf("Run result: %d\n", resp.Steps)
	return 0
}
