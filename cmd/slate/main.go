// Command slate runs slate scripts, or starts a REPL when invoked with no
// script argument.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/peterh/liner"
	"github.com/tliron/commonlog"

	"github.com/slate-lang/slate/internal/cache"
	"github.com/slate-lang/slate/internal/config"
	"github.com/slate-lang/slate/internal/vm"

	_ "github.com/tliron/commonlog/simple"
)

const (
	appName = "slate"
	prompt  = "> "

	// sysexits.h conventions: EX_DATAERR for compile errors,
	// EX_SOFTWARE for runtime errors.
	exitCompileError = 65
	exitRuntimeError = 70
)

var log = commonlog.GetLogger(appName)

func main() {
	configPath := flag.String("config", defaultConfigPath(), "path to TOML config file")
	disasm := flag.Bool("disasm", false, "print disassembly instead of executing")
	noCache := flag.Bool("no-cache", false, "disable the compiled-chunk cache")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		os.Exit(2)
	}
	level := cfg.Log.Level
	if *verbose {
		level = 2
	}
	commonlog.Configure(level, nil)

	machine := vm.New()
	defer machine.Close()
	log.Debugf("VM %s ready", machine.ID())

	if cfg.Cache.Enabled && !*noCache && !*disasm {
		if store := openStore(cfg.Cache.Path); store != nil {
			defer store.Close()
			machine.SetStore(store)
		}
	}

	if path := flag.Arg(0); path != "" {
		if *disasm {
			os.Exit(runDisasm(machine, path))
		}
		os.Exit(runFile(machine, path))
	}
	os.Exit(runRepl(machine, cfg))
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return appName + ".toml"
	}
	return filepath.Join(dir, appName, appName+".toml")
}

func openStore(path string) *cache.Store {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		log.Errorf("cache directory: %v", err)
		return nil
	}
	store, err := cache.OpenStore(path)
	if err != nil {
		// Cache failures never block execution.
		log.Errorf("cache disabled: %v", err)
		return nil
	}
	log.Debugf("cache at %s", path)
	return store
}

func runFile(machine *vm.VM, path string) int {
	switch machine.DoFile(path) {
	case vm.ResultCompileError:
		return exitCompileError
	case vm.ResultRuntimeError:
		return exitRuntimeError
	}
	return 0
}

func runDisasm(machine *vm.VM, path string) int {
	src, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: cannot read %s: %v\n", appName, path, err)
		return exitCompileError
	}
	fn, err := machine.Compile(path, string(src))
	if err != nil {
		return exitCompileError
	}
	fmt.Print(machine.Disassemble(fn, path))
	return 0
}

func runRepl(machine *vm.VM, cfg config.Config) int {
	fmt.Println("slate REPL. Ctrl+D exits.")

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	histPath := cfg.Repl.History
	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if err := os.MkdirAll(filepath.Dir(histPath), 0o755); err != nil {
			return
		}
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigc)
	go func() {
		<-sigc
		ln.Close()
		os.Exit(130)
	}()

	for {
		line, err := ln.Prompt(prompt)
		if errors.Is(err, io.EOF) {
			fmt.Println()
			return 0
		}
		if errors.Is(err, liner.ErrPromptAborted) {
			continue
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
			return 1
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		ln.AppendHistory(line)
		machine.Interpret("repl", line)
	}
}
