// Command shaderkitc builds the shaders of a TOML manifest against a
// headless device and reports the result.
//
// Usage:
//
//	shaderkitc [-backend noop] [-watch] [-wgsl] [-log-level debug] shaders.toml
//
// Every stage is compiled and every pipeline created, so a clean run
// means the manifest and its WGSL sources are consistent. With -watch the
// shaders are rebuilt whenever a source file changes until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gogpu/shaderkit"
	"github.com/gogpu/shaderkit/backend"
	"github.com/gogpu/shaderkit/backend/wgpu"
	"github.com/gogpu/shaderkit/internal/manifest"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

func main() {
	var (
		backendName = flag.String("backend", backend.BackendNoop, "device backend ("+strings.Join(backend.Available(), ", ")+")")
		watch       = flag.Bool("watch", false, "rebuild shaders when their sources change")
		wgsl        = flag.Bool("wgsl", false, "pass WGSL to the device instead of compiling to SPIR-V")
		logLevel    = flag.String("log-level", "info", "log level (debug, info, warn, error)")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: shaderkitc [flags] manifest.toml\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	logger, err := newLogger(*logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	shaderkit.SetLogger(logger)

	if err := run(logger, flag.Arg(0), *backendName, *watch, *wgsl); err != nil {
		logger.Error("shaderkitc failed", "err", err)
		os.Exit(1)
	}
}

func newLogger(level string) (*slog.Logger, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("bad -log-level: %w", err)
	}
	h := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
		Level:           lvl,
		Prefix:          "shaderkitc",
	})
	return slog.New(h).With("run", uuid.NewString()[:8]), nil
}

func run(logger *slog.Logger, path, backendName string, watch, wgsl bool) error {
	m, err := manifest.Load(path)
	if err != nil {
		return err
	}

	var devOpts []wgpu.Option
	if wgsl {
		devOpts = append(devOpts, wgpu.WithWGSLSource(true))
	}
	dev, err := backend.Open(backendName, devOpts...)
	if err != nil {
		return err
	}
	defer dev.Close()
	logger.Debug("device open", "backend", dev.Name())

	var failures atomic.Int32
	opts := append(m.Options(), shaderkit.WithBuildFailureHandler(func(e *shaderkit.BuildError) {
		failures.Add(1)
		logger.Error("build failed", "shader", e.Shader, "stage", e.Stage, "err", e.Err)
		if e.InfoLog != "" {
			fmt.Fprintln(os.Stderr, e.InfoLog)
		}
	}))
	ctx, err := shaderkit.NewContext(dev, opts...)
	if err != nil {
		return err
	}
	defer ctx.Close()

	start := time.Now()
	shaders, err := m.Build(ctx)
	if err != nil {
		return err
	}
	report(logger, shaders, dev, ctx, time.Since(start))

	if !watch {
		if n := failures.Load(); n > 0 {
			return fmt.Errorf("%d build failure(s)", n)
		}
		return nil
	}
	return watchLoop(logger, ctx, shaders)
}

func report(logger *slog.Logger, shaders []*shaderkit.Shader, dev *backend.Device, ctx *shaderkit.Context, took time.Duration) {
	for _, s := range shaders {
		built := 0
		for _, slot := range s.Slots() {
			if slot.Built() {
				built++
			}
		}
		logger.Info("shader", "name", s.Name(), "kind", s.Kind(), "pipelines", fmt.Sprintf("%d/%d", built, s.PipelineCount()))
	}
	hits, misses := ctx.RenderPasses().Stats()
	st := dev.Stats()
	logger.Info("built",
		"shaders", len(shaders),
		"modules", st.Modules,
		"pipelines", st.Pipelines,
		"render_passes", st.RenderPasses,
		"pass_hits", hits,
		"pass_misses", misses,
		"took", took.Round(time.Millisecond))
}

// watchLoop rebuilds changed shaders until SIGINT or SIGTERM. Rebuilds run
// on this goroutine, which owns ctx.
func watchLoop(logger *slog.Logger, ctx *shaderkit.Context, shaders []*shaderkit.Shader) error {
	w, err := ctx.NewWatcher()
	if err != nil {
		return err
	}
	for _, s := range shaders {
		if err := w.Watch(s); err != nil {
			_ = w.Close()
			return err
		}
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(sigCtx)
	g.Go(func() error {
		<-gctx.Done()
		return w.Close()
	})

	logger.Info("watching for changes", "shaders", len(shaders))
	for done := false; !done; {
		select {
		case <-gctx.Done():
			done = true
		case <-w.Changed():
			n := w.ApplyPending()
			ctx.Flush()
			logger.Info("rebuilt", "shaders", n, "pending", ctx.SchedulerStats().Pending)
		}
	}
	return g.Wait()
}
