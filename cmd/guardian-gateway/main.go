package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/app"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := runFn(ctx, os.Args[1:], os.Getenv, listenAndServe, newApp); err != nil {
		fatalf("server error: %v", err)
	}
}

var runFn = run
var fatalf = log.Fatalf

func newApp(ctx context.Context, cfg config.Config) (*app.App, error) {
	return app.New(ctx, cfg, app.Options{LogOutput: os.Stderr})
}

type envFn func(string) string
type listenFn func(*http.Server) error
type appFactory func(ctx context.Context, cfg config.Config) (*app.App, error)

func run(ctx context.Context, args []string, getenv envFn, listen listenFn, factory appFactory) error {
	flags := flag.NewFlagSet("guardian-gateway", flag.ContinueOnError)
	configPath := flags.String("config", "", "path to guardian config file")
	envFile := flags.String("env-file", ".env", "dotenv file loaded before reading the environment")
	if err := flags.Parse(args); err != nil {
		return err
	}

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	cfg, err := loadConfig(firstNonEmpty(*configPath, getenv("GUARDIAN_CONFIG_PATH")), getenv)
	if err != nil {
		return err
	}

	a, err := factory(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	a.Start(ctx)
	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           a.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	a.Log.WithField("addr", cfg.ListenAddr).Info("guardian-gateway listening")
	if err := listen(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func loadConfig(path string, getenv envFn) (config.Config, error) {
	cfg := config.Defaults()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	cfg.ApplyEnv(getenv)
	return cfg, cfg.Validate()
}

func listenAndServe(server *http.Server) error {
	return server.ListenAndServe()
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
