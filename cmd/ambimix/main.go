package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
	"golang.org/x/sync/errgroup"

	"github.com/satindergrewal/ambimix/internal/api"
	"github.com/satindergrewal/ambimix/internal/audio"
	"github.com/satindergrewal/ambimix/internal/config"
	"github.com/satindergrewal/ambimix/internal/control"
	"github.com/satindergrewal/ambimix/internal/fanout"
	"github.com/satindergrewal/ambimix/internal/library"
	"github.com/satindergrewal/ambimix/internal/metrics"
	"github.com/satindergrewal/ambimix/internal/mixer"
	"github.com/satindergrewal/ambimix/internal/session"
	"github.com/satindergrewal/ambimix/internal/stream"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Println("ambimix starting up...")

	// Software mixdown is the engine's output port
	mix := audio.NewMixdown(audio.DecodeFile)
	defer mix.Close()

	opts := mixer.Options{TickInterval: cfg.TickInterval}
	if cfg.Seed != 0 {
		opts.Rand = rand.New(rand.NewPCG(cfg.Seed, cfg.Seed))
	}
	engine := mixer.NewEngine(mix, opts)

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Session store unavailable: %v", err)
	}
	defer closeStore()
	sessions := session.NewManager(store, engine)

	lib := library.New(cfg.SoundsDir, cfg.UserSoundsDir)
	log.Printf("Sound library: %d categories in %s", len(lib.Categories()), cfg.SoundsDir)

	collector := metrics.New(engine)

	// Fan-out PCM frames to speakers and stream listeners
	frames := fanout.New[[]int16](100)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { mix.Run(ctx); return nil })
	g.Go(func() error { frames.Run(ctx, mix.Frames()); return nil })
	g.Go(func() error { engine.Run(ctx); return nil })

	metricEvents := engine.Subscribe()
	g.Go(func() error { collector.Run(ctx, metricEvents); return nil })

	if cfg.Speakers() {
		speakers, err := audio.OpenSpeakers()
		if err != nil {
			log.Printf("Speakers unavailable, continuing without local playback: %v", err)
		} else {
			l := frames.Subscribe()
			g.Go(func() error {
				defer frames.Unsubscribe(l)
				speakers.Run(ctx, l.C)
				return nil
			})
		}
	}

	if cfg.MIDIPort != "" {
		defer midi.CloseDriver()
		surface := control.NewSurface(engine)
		stop, err := surface.Listen(cfg.MIDIPort)
		if err != nil {
			log.Printf("MIDI control surface disabled: %v", err)
		} else {
			defer stop()
			feedback := engine.Subscribe()
			g.Go(func() error { surface.Follow(ctx, feedback); return nil })
		}
	}

	// HTTP routes
	mux := http.NewServeMux()
	srv := &api.Server{
		Mixer:    engine,
		Sessions: sessions,
		Library:  lib,
	}
	if cfg.Stream() {
		httpHandler := stream.NewHTTPHandler(frames, "ambimix")
		webrtcHandler := stream.NewWebRTCHandler(frames, "ambimix")
		defer webrtcHandler.Close()
		mux.Handle("GET /stream", httpHandler)
		mux.Handle("/offer", webrtcHandler)
		srv.HTTPListeners = httpHandler.ListenerCount
		srv.WebRTCListeners = webrtcHandler.PeerCount
	}
	mux.Handle("GET /metrics", collector.Handler())
	srv.Routes(mux)

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: mux}

	g.Go(func() error {
		<-ctx.Done()
		log.Println("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
		defer cancel()
		// Streaming responses never finish on their own.
		if err := server.Shutdown(shutdownCtx); err != nil {
			server.Close()
		}
		return nil
	})
	g.Go(func() error {
		log.Printf("ambimix live on %s", addr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("%v", err)
	}
	log.Println("ambimix stopped")
}

// openStore builds the configured session backend and its cleanup func.
func openStore(ctx context.Context, cfg config.Config) (session.Store, func(), error) {
	nop := func() {}
	switch cfg.SessionDriver {
	case config.DriverSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
			return nil, nop, fmt.Errorf("create sqlite dir: %w", err)
		}
		s, err := session.OpenSQLStore(ctx, session.DriverSQLite, cfg.SQLitePath)
		if err != nil {
			return nil, nop, err
		}
		log.Printf("Sessions in sqlite %s", cfg.SQLitePath)
		return s, func() { s.Close() }, nil
	case config.DriverPostgres:
		s, err := session.OpenSQLStore(ctx, session.DriverPostgres, cfg.PostgresDSN)
		if err != nil {
			return nil, nop, err
		}
		log.Println("Sessions in postgres")
		return s, func() { s.Close() }, nil
	case config.DriverS3:
		s, err := session.NewS3Store(ctx, session.S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			PathStyle: cfg.S3PathStyle,
		})
		if err != nil {
			return nil, nop, err
		}
		log.Printf("Sessions in s3://%s", cfg.S3Bucket)
		return s, nop, nil
	}
	s, err := session.NewFileStore(cfg.SessionsDir)
	if err != nil {
		return nil, nop, err
	}
	log.Printf("Sessions in %s", s.Dir())
	return s, nop, nil
}
