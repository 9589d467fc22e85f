package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/postforge/postforge/config"
	"github.com/postforge/postforge/pipeline"
	"github.com/postforge/postforge/server"
)

var verbose bool

func main() {
	configPath := flag.String("config", "", "path to config.json (optional; env and .env still apply)")
	input := flag.String("input", "", "topic, URL, video URL or raw text for a single run")
	userID := flag.String("user", "default", "user whose preferences drive the run")
	batch := flag.String("batch", "", "file with one input per line; each line is an independent run")
	parallel := flag.Int("parallel", 4, "concurrent runs in -batch mode")
	serve := flag.Bool("serve", false, "start web server")
	addr := flag.String("addr", "", "http listen address when -serve (overrides config server_addr)")
	flag.BoolVar(&verbose, "v", false, "enable debug logs")
	flag.Parse()

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(*configPath, *input, *userID, *batch, *parallel, *serve, *addr, logger); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath, input, userID, batch string, parallel int, serve bool, addr string, logger *slog.Logger) error {
	if input == "" && batch == "" && !serve {
		return errNoInput
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	switch {
	case serve:
		listen := cfg.ServerAddr
		if addr != "" {
			listen = addr
		}
		return serveHTTP(ctx, a, listen, logger)
	case batch != "":
		return runBatch(ctx, a.orch, batch, userID, parallel)
	}
	res, err := a.orch.Run(ctx, input, userID)
	printResult(res)
	return err
}

func serveHTTP(ctx context.Context, a *app, listen string, logger *slog.Logger) error {
	opts := []server.Option{server.WithLogger(logger)}
	if a.defaultPrefs {
		opts = append(opts, server.WithDefaultPreferences())
	}
	srv, err := server.New(a.orch, a.sink, a.images, a.prefs, opts...)
	if err != nil {
		return err
	}
	hs := &http.Server{Addr: listen, Handler: srv.Routes(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = hs.Shutdown(sctx)
	}()
	logger.Info("starting web server", "addr", listen)
	if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// runBatch runs every non-empty line of path. Runs are independent: a
// failed run is reported and the rest continue.
func runBatch(ctx context.Context, orch *pipeline.Orchestrator, path, userID string, parallel int) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var inputs []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			inputs = append(inputs, line)
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}

	var (
		g      errgroup.Group
		mu     sync.Mutex
		failed int
	)
	g.SetLimit(max(parallel, 1))
	for _, in := range inputs {
		g.Go(func() error {
			res, err := orch.Run(ctx, in, userID)
			mu.Lock()
			defer mu.Unlock()
			printResult(res)
			if err != nil {
				failed++
			}
			return nil
		})
	}
	_ = g.Wait()
	if failed > 0 {
		return fmt.Errorf("%d of %d runs failed", failed, len(inputs))
	}
	return nil
}

func printResult(res pipeline.Result) {
	b, _ := json.Marshal(res)
	fmt.Println(string(b))
}
