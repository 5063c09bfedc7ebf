package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/peterh/liner"

	scm "github.com/xirelogy/go-scm"
	"github.com/xirelogy/go-scm/internal/bytecode"
	"github.com/xirelogy/go-scm/internal/compiler"
	"github.com/xirelogy/go-scm/internal/config"
)

const (
	appName = "goscm"
	version = "0.1.0"
	banner  = "goscm " + version + " (type :quit to exit)"
)

func red(s string) string { return "\x1b[31m" + s + "\x1b[0m" }

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd := os.Args[1]
	switch cmd {
	case "run":
		os.Exit(cmdRun(os.Args[2:]))
	case "eval":
		os.Exit(cmdEval(os.Args[2:]))
	case "repl":
		os.Exit(cmdRepl(os.Args[2:]))
	case "disasm":
		os.Exit(cmdDisasm(os.Args[2:]))
	case "version":
		fmt.Println(version)
		return
	case "-h", "--help", "help":
		usage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "%s: unknown command %q\n", appName, cmd)
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Printf(`goscm %s

Usage:
  %s run [flags] <file.scm>       Run a program.
  %s eval [flags] '<source>'      Evaluate source and print each form's value.
  %s repl [flags]                 Start the REPL.
  %s disasm <file.scm>            Print the instructions of each form.
  %s version                      Print the version

Flags:
  -config <file>   YAML settings (prompts, history, limits, preload, log level)
  -trace           Log every instruction dispatch at debug level

`, version, appName, appName, appName, appName, appName)
}

type options struct {
	configPath string
	trace      bool
}

func parseFlags(name string, args []string) (*options, []string, bool) {
	opts := &options{}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", "", "path to a YAML config file")
	fs.BoolVar(&opts.trace, "trace", false, "log instruction dispatch")
	if err := fs.Parse(args); err != nil {
		return nil, nil, false
	}
	return opts, fs.Args(), true
}

// setup loads settings, installs the logger and builds a VM with the
// preload files already run.
func setup(opts *options) (*scm.VM, *config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return nil, nil, err
		}
		cfg = loaded
	}
	trace := cfg.Trace || opts.trace
	level := cfg.Level()
	if trace {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	vm := scm.NewVM()
	vm.SetMaxDepth(cfg.MaxDepth)
	vm.SetInstructionLimit(cfg.InstructionLimit)
	if trace {
		vm.SetTraceHook(func(info scm.TraceInfo) {
			logger.Debug("dispatch",
				slog.String("instruction", info.Instruction),
				slog.String("procedure", info.Procedure),
				slog.String("source", info.Source),
				slog.Int("line", info.Line),
				slog.Int("ip", info.IP),
				slog.Int("depth", info.Depth))
		})
	}
	slog.Debug("vm ready",
		slog.String("config", cfg.Path),
		slog.Int("max-depth", cfg.MaxDepth),
		slog.Int("instruction-limit", cfg.InstructionLimit))

	for _, path := range cfg.Preload {
		path = config.ExpandPath(path)
		slog.Debug("preload", slog.String("path", path))
		if _, err := vm.LoadFile(path); err != nil {
			return nil, nil, fmt.Errorf("preload %s: %w", path, err)
		}
	}
	return vm, cfg, nil
}

// -----------------------------------------------------------------------------
// run
// -----------------------------------------------------------------------------

func cmdRun(args []string) int {
	opts, rest, ok := parseFlags("run", args)
	if !ok {
		return 2
	}
	if len(rest) != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s run [flags] <file.scm>\n", appName)
		return 2
	}
	vm, _, err := setup(opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return 1
	}
	results, err := vm.LoadFile(rest[0])
	if err != nil {
		slog.Debug("run stopped", slog.Int("completed-forms", len(results)))
		fmt.Fprintln(os.Stderr, err.Error())
		return 1
	}
	return 0
}

// -----------------------------------------------------------------------------
// eval
// -----------------------------------------------------------------------------

func cmdEval(args []string) int {
	opts, rest, ok := parseFlags("eval", args)
	if !ok {
		return 2
	}
	if len(rest) == 0 {
		fmt.Fprintf(os.Stderr, "usage: %s eval [flags] '<source>'\n", appName)
		return 2
	}
	vm, _, err := setup(opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return 1
	}
	results, err := vm.LoadSource("eval", strings.Join(rest, " "))
	for _, r := range results {
		fmt.Println(r.Write())
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return 1
	}
	return 0
}

// -----------------------------------------------------------------------------
// repl
// -----------------------------------------------------------------------------

func cmdRepl(args []string) int {
	opts, _, ok := parseFlags("repl", args)
	if !ok {
		return 2
	}
	vm, cfg, err := setup(opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, red(err.Error()))
		return 1
	}
	fmt.Println(banner)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	histPath := config.ExpandPath(cfg.HistoryFile)
	if histPath != "" {
		if f, err := os.Open(histPath); err == nil {
			_, _ = ln.ReadHistory(f)
			_ = f.Close()
		}
		defer func() {
			f, err := os.Create(histPath)
			if err != nil {
				slog.Warn("history not saved", slog.String("path", histPath), slog.Any("error", err))
				return
			}
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}()
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigc)
	go func() {
		<-sigc
		ln.Close()
		os.Exit(130)
	}()

	for {
		code, ok := readForm(ln, cfg.Prompt, cfg.ContinuationPrompt)
		if !ok {
			fmt.Println()
			break
		}
		trimmed := strings.TrimSpace(code)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, ":") {
			switch strings.ToLower(trimmed) {
			case ":quit", ":q":
				return 0
			default:
				fmt.Println("unknown command. Type :quit to exit.")
			}
			continue
		}

		ln.AppendHistory(strings.ReplaceAll(code, "\n", " "))
		results, err := vm.LoadSource("repl", code)
		for _, r := range results {
			fmt.Println(r.Write())
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, red(err.Error()))
		}
	}
	return 0
}

// readForm collects lines until the compiler no longer reports the input as
// incomplete. Ctrl-C discards the pending input.
func readForm(ln *liner.State, prompt, cont string) (string, bool) {
	var b strings.Builder
	for {
		p := prompt
		if b.Len() > 0 {
			p = cont
		}
		line, err := ln.Prompt(p)
		if errors.Is(err, io.EOF) {
			return "", false
		}
		if errors.Is(err, liner.ErrPromptAborted) {
			return "", true
		}
		if err != nil {
			slog.Error("prompt failed", slog.Any("error", err))
			return "", false
		}

		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)

		src := b.String()
		if _, err := compiler.Compile("repl", src); scm.IsIncomplete(err) {
			continue
		}
		return src, true
	}
}

// -----------------------------------------------------------------------------
// disasm
// -----------------------------------------------------------------------------

func cmdDisasm(args []string) int {
	_, rest, ok := parseFlags("disasm", args)
	if !ok {
		return 2
	}
	if len(rest) != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s disasm <file.scm>\n", appName)
		return 2
	}
	src, err := os.ReadFile(rest[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: cannot read %s: %v\n", appName, rest[0], err)
		return 1
	}
	mod, cerr := compiler.Compile(rest[0], string(src))
	dis := bytecode.NewDisassembler(os.Stdout)
	for _, form := range mod.Forms {
		if err := dis.DisassembleForm("", form); err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			return 1
		}
	}
	if cerr != nil {
		fmt.Fprintln(os.Stderr, cerr.Error())
		return 1
	}
	return 0
}
