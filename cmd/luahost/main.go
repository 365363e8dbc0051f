package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"github.com/wippyai/luahost/behavior"
	"github.com/wippyai/luahost/config"
	"github.com/wippyai/luahost/errors"
	"github.com/wippyai/luahost/runtime"
	"github.com/wippyai/luahost/vm"
)

type options struct {
	configPath string
	root       string
	attach     string
	exec       string
	call       string
	frames     int
	fps        int
}

func main() {
	var (
		opts        options
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.StringVar(&opts.configPath, "config", "", "Path to luahost.toml (default: search upward from the working directory)")
	flag.StringVar(&opts.root, "root", "", "Override script_root")
	flag.StringVar(&opts.attach, "attach", "", "Modules to attach as behaviors (comma-separated)")
	flag.StringVar(&opts.exec, "exec", "", "Lua chunk to run after startup")
	flag.StringVar(&opts.call, "call", "", "Global function to call after startup (a.b.c paths allowed)")
	flag.IntVar(&opts.frames, "frames", 0, "Number of frames to simulate")
	flag.IntVar(&opts.fps, "fps", 60, "Simulated frames per second")
	flag.Parse()

	if opts.fps <= 0 {
		fmt.Fprintln(os.Stderr, "Usage: luahost [-config file] [-root dir] [-attach a,b] [-frames n] [-fps n] [-exec chunk] [-call fn]")
		fmt.Fprintln(os.Stderr, "       luahost -i  (interactive mode)")
		os.Exit(1)
	}

	if *interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: interactive mode needs a terminal")
			os.Exit(1)
		}
		if err := runInteractive(opts); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(opts options) (config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	if opts.configPath != "" {
		cfg, err = config.Load(opts.configPath)
	} else {
		wd, werr := os.Getwd()
		if werr != nil {
			return cfg, werr
		}
		cfg, err = config.FindAndLoad(wd)
	}
	if err != nil {
		return cfg, err
	}
	if opts.root != "" {
		cfg.ScriptRoot = opts.root
	}
	return cfg, nil
}

// newLogger builds a console logger for humans watching a terminal, JSON
// otherwise.
func newLogger(level string, sink zapcore.WriteSyncer) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	if sink != nil {
		enc := zap.NewDevelopmentEncoderConfig()
		enc.TimeKey = ""
		core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), sink, lvl)
		return zap.New(core), nil
	}

	var zc zap.Config
	if term.IsTerminal(int(os.Stderr.Fd())) {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// boot creates the runtime, runs the init scripts and attaches behaviors.
func boot(cfg config.Config, attach string, log *zap.Logger) (*runtime.Runtime, error) {
	runtime.SetLogger(log)

	rt, err := runtime.New(cfg, runtime.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("create runtime: %w", err)
	}
	if err := rt.Init(); err != nil {
		rt.Close()
		return nil, fmt.Errorf("init: %w", err)
	}
	if err := rt.Startup(); err != nil && !errors.IsNotFound(err) {
		rt.Close()
		return nil, fmt.Errorf("startup: %w", err)
	}

	for _, name := range splitList(attach) {
		b := behavior.New(rt, name)
		if err := b.Init(); err != nil {
			log.Warn("behavior attached without script", zap.String("module", name), zap.Error(err))
			continue
		}
		b.Enable()
	}
	return rt, nil
}

func run(opts options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg.LogLevel, nil)
	if err != nil {
		return err
	}
	defer log.Sync()

	rt, err := boot(cfg, opts.attach, log)
	if err != nil {
		return err
	}
	defer rt.Close()

	if opts.exec != "" {
		res, err := rt.DoString(opts.exec)
		if err != nil {
			return err
		}
		printResults("exec", res)
	}
	if opts.call != "" {
		res, err := rt.CallGlobalFunction(opts.call, true)
		if err != nil {
			return err
		}
		printResults(opts.call, res)
	}

	frame := time.Second / time.Duration(opts.fps)
	var now time.Duration
	for i := 0; i < opts.frames; i++ {
		now += frame
		behavior.TickAll(rt)
		rt.Tick(now)
	}

	st := rt.Stats()
	fmt.Printf("frames: %d  behaviors: %d  gc steps: %d  released: %d  pending: %d\n",
		opts.frames, len(behavior.Live(rt)), st.Steps, st.Released, st.Pending)
	return nil
}

func printResults(label string, res []lua.LValue) {
	for i, v := range res {
		fmt.Printf("%s[%d] = %s\n", label, i+1, formatValue(v))
	}
}

func formatValue(v lua.LValue) string {
	return fmt.Sprintf("%v", vm.ToGo(v))
}
