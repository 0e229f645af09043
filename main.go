package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"

	"golang.org/x/term"

	"github.com/aryanA101a/pagesim/config"
	"github.com/aryanA101a/pagesim/vm"
)

func main() {
	configPath := flag.String("config", "", "JSON config file (defaults when empty)")
	step := flag.Bool("step", false, "wait for a key press before every instruction")
	dump := flag.Bool("dump", false, "dump page tables on process exit and devices at the end")
	verbose := flag.Bool("v", false, "trace every instruction")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] program...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			log.Fatalf("failed to load config: %s\n", err)
		}
	}
	if *step {
		cfg.Step = true
	}
	if *verbose {
		cfg.LogLevel = "debug"
	}

	logger := config.NewLogger(cfg.LogLevel, os.Stderr)
	machine, err := vm.NewVM(cfg, logger)
	if err != nil {
		log.Fatalf("failed to start: %s\n", err)
	}
	defer machine.Close()

	for _, arg := range args {
		if _, err := machine.Load(arg); err != nil {
			log.Fatalf("failed to load image: %s: %s\n", arg, err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if cfg.Step {
		machine.EnableStepMode(os.Stdin)
	}
	if *dump {
		machine.DumpOnExit(os.Stdout)
	}

	if err := machine.Run(ctx); err != nil {
		logger.Warn("run interrupted", "error", err)
	}

	if *dump {
		fmt.Println(separator())
		machine.Dump(os.Stdout)
	}
}

func separator() string {
	width := 80
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		width = w
	}
	return strings.Repeat("-", width)
}
