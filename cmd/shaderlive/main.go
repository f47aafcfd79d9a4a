// Command shaderlive compiles WGSL shaders as they are edited and keeps
// rendering the newest one that works.
//
// Shader text arrives over a websocket (GET /ws), a plain HTTP POST to
// /shader, or from a watched file:
//
//	shaderlive -watch main.wgsl
//	shaderlive -config shaderlive.yaml -listen :7777
//
// Diagnostics for rejected shaders are printed to stderr and sent to
// connected websocket clients.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	_ "github.com/gogpu/wgpu/hal/allbackends"

	"github.com/gogpu/shaderlive"
	"github.com/gogpu/shaderlive/config"
	"github.com/gogpu/shaderlive/gpu"
	"github.com/gogpu/shaderlive/pipeline"
	"github.com/gogpu/shaderlive/preview"
	"github.com/gogpu/shaderlive/shader"
	"github.com/gogpu/shaderlive/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "shaderlive: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "YAML configuration file")
	listen := flag.String("listen", "", "websocket and HTTP address; \"off\" disables the server")
	watch := flag.String("watch", "", "WGSL file to preview")
	width := flag.Uint("width", 0, "surface width in pixels")
	height := flag.Uint("height", 0, "surface height in pixels")
	backend := flag.String("backend", "", "GPU backend: auto, vulkan, metal, dx12 or gl")
	quiescence := flag.Duration("quiescence", 0, "quiet period before an edit is compiled")
	fps := flag.Int("fps", 0, "render loop frame rate")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn or error")
	logFormat := flag.String("log-format", "", "log format: text or json")
	snapshot := flag.String("snapshot", "", "write the last frame to this .png, .bmp or .tiff file on exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Live WGSL preview. Shaders come from -watch, POST /shader or the /ws websocket.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	// Flags given on the command line override the file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			cfg.Listen = *listen
			if strings.EqualFold(cfg.Listen, "off") {
				cfg.Listen = ""
			}
		case "watch":
			cfg.Watch = *watch
		case "width":
			cfg.Width = uint32(*width)
		case "height":
			cfg.Height = uint32(*height)
		case "backend":
			cfg.Backend = strings.ToLower(*backend)
		case "quiescence":
			cfg.Quiescence = *quiescence
		case "fps":
			cfg.FPS = *fps
		case "log-level":
			cfg.Log.Level = strings.ToLower(*logLevel)
		case "log-format":
			cfg.Log.Format = strings.ToLower(*logFormat)
		}
	})
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	if cfg.Listen == "" && cfg.Watch == "" {
		flag.Usage()
		return errors.New("nothing to preview: set -watch or -listen")
	}

	shaderlive.SetLogger(newLogger(cfg))
	color := useColor(cfg.Log.Color)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	inst, err := gpu.NewWGPUInstance(cfg.Backends())
	if err != nil {
		return err
	}
	defer inst.Release()

	gc, err := gpu.Initialize(ctx, inst,
		gpu.OffscreenTarget{Width: cfg.Width, Height: cfg.Height},
		gpu.WithLabel("shaderlive"),
		gpu.WithPowerPreference(cfg.PowerPreference()),
		gpu.WithFormat(cfg.TextureFormat()),
	)
	if err != nil {
		return err
	}
	defer gc.Dispose()

	pcfg := pipeline.DefaultConfig()
	pcfg.VertexEntryPoint = cfg.VertexEntryPoint
	pcfg.FragmentEntryPoint = cfg.FragmentEntryPoint

	// The server forwards to the session created below; it only serves
	// once the session exists.
	var session *preview.Session
	server := transport.NewServer(transport.HandlerFunc(func(m transport.Message) {
		session.HandleMessage(m)
	}))

	session, err = preview.New(gc,
		preview.WithQuiescence(cfg.Quiescence),
		preview.WithRefreshInterval(cfg.RefreshInterval()),
		preview.WithCacheSize(cfg.CacheSize),
		preview.WithPipelineConfig(pcfg),
		preview.WithNotifier(server),
		preview.WithDiagnosticFunc(func(d *shaderlive.Diagnostic, src shaderlive.ShaderSource) {
			fmt.Fprintln(os.Stderr, shader.FormatDiagnostic(d, src.Code, color))
		}),
	)
	if err != nil {
		return err
	}
	session.Start()

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Listen != "" {
		g.Go(func() error { return server.Serve(gctx, cfg.Listen) })
	}
	if cfg.Watch != "" {
		g.Go(func() error { return transport.NewWatcher(cfg.Watch, session).Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	runErr := g.Wait()

	session.Close()
	shaderlive.Logger().Info("shaderlive: stopped",
		"frames", session.Renderer().Frames(), "skipped", session.Renderer().Skipped(),
		"revision", session.Pipelines().Revision())

	if *snapshot != "" {
		if err := writeSnapshot(gc, *snapshot); err != nil {
			return errors.Join(runErr, err)
		}
	}
	return runErr
}

func newLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel()}
	var h slog.Handler
	if cfg.Log.Format == "json" {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	l := slog.New(h)
	slog.SetDefault(l)
	return l
}

func useColor(mode string) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return false
	default:
		return term.IsTerminal(int(os.Stderr.Fd()))
	}
}
