package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/kardianos/service"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"tokenmeter/internal/audit"
	"tokenmeter/internal/meter"
	"tokenmeter/internal/pricing"
	"tokenmeter/internal/storage"
	"tokenmeter/server/internal/config"
	"tokenmeter/server/internal/handlers"
	"tokenmeter/server/internal/middleware"
)

const version = "0.1.0"

type program struct {
	configPath string

	logger  *zap.Logger
	srv     *http.Server
	records *storage.SQLiteRecords
	rdb     *redis.Client
}

func (p *program) Start(_ service.Service) error {
	if err := p.setup(); err != nil {
		return err
	}
	go p.serve()
	return nil
}

func (p *program) Stop(_ service.Service) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if p.srv != nil {
		if err := p.srv.Shutdown(ctx); err != nil {
			p.logger.Error("server shutdown failed", zap.Error(err))
		}
	}
	if p.records != nil {
		p.records.Close()
	}
	if p.rdb != nil {
		p.rdb.Close()
	}
	if p.logger != nil {
		p.logger.Sync()
	}
	return nil
}

func (p *program) setup() error {
	cfg, err := config.Load(p.configPath)
	if err != nil {
		return err
	}

	logger, err := initLogger(cfg)
	if err != nil {
		return err
	}
	p.logger = logger

	records, err := storage.OpenSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open record store: %w", err)
	}
	p.records = records

	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		records.Close()
		return fmt.Errorf("failed to reach aggregate store at %s: %w", cfg.RedisAddr, err)
	}
	p.rdb = rdb

	table := pricing.NewTable(cfg.Families(), logger)
	buckets := storage.NewRedisBuckets(rdb, cfg.BucketTTL())
	sink := audit.NewZapSink(logger.Named("audit"))
	svc := meter.NewService(records, buckets, sink, table, logger, cfg.RetryPolicy())

	h := handlers.New(svc, logger)
	limiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/usage", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			h.TrackUsage(w, r)
			return
		}
		h.GetUsage(w, r)
	})
	mux.HandleFunc("/api/analytics", h.GetAnalytics)
	mux.HandleFunc("/api/recommendations", h.GetRecommendations)
	mux.HandleFunc("/api/projection", h.GetProjection)
	mux.HandleFunc("/api/export", h.ExportUsage)

	p.srv = &http.Server{
		Addr:         cfg.Listen,
		Handler:      middleware.Headers(limiter.Limit(mux)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	logger.Info("starting tokenmeter",
		zap.String("version", version),
		zap.String("listen", cfg.Listen),
		zap.String("db_path", cfg.DBPath),
		zap.String("redis_addr", cfg.RedisAddr),
	)
	return nil
}

func (p *program) serve() {
	if err := p.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		p.logger.Fatal("server failed", zap.Error(err))
	}
}

func initLogger(cfg *config.Config) (*zap.Logger, error) {
	var zapConfig zap.Config
	if cfg.LogFormat == "json" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	zapConfig.Level = level

	return zapConfig.Build()
}

func main() {
	// Detect a service control command before flag parsing
	var svcCommand string
	args := os.Args[1:]
	if len(args) > 0 {
		switch args[0] {
		case "install", "start", "stop", "uninstall", "status":
			svcCommand = args[0]
			args = args[1:]
		}
	}

	fs := flag.NewFlagSet("tokenmeter", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to YAML config file")
	showVer := fs.Bool("version", false, "Show version")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `tokenmeter - AI usage metering and analytics service

Usage: tokenmeter [command] [options]

Commands:
  (none)      Run the server in the foreground
  install     Install as a background service
  start       Start the background service
  stop        Stop the background service
  uninstall   Remove the background service
  status      Show service status

Options:
`)
		fs.PrintDefaults()
	}
	fs.Parse(args)

	if *showVer {
		fmt.Printf("tokenmeter version %s\n", version)
		return
	}

	svcConfig := &service.Config{
		Name:        "tokenmeter",
		DisplayName: "tokenmeter Server",
		Description: "Meters AI inference usage and serves cost analytics",
	}
	if *configPath != "" {
		svcConfig.Arguments = []string{fmt.Sprintf("--config=%s", *configPath)}
	}

	prg := &program{configPath: *configPath}
	s, err := service.New(prg, svcConfig)
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}

	switch svcCommand {
	case "install":
		if err := s.Install(); err != nil {
			log.Fatalf("Failed to install service: %v", err)
		}
		if err := s.Start(); err != nil {
			log.Fatalf("Service installed but failed to start: %v", err)
		}
		fmt.Println("Service installed and started.")

	case "start":
		if err := s.Start(); err != nil {
			log.Fatalf("Failed to start service: %v", err)
		}
		fmt.Println("Service started.")

	case "stop":
		if err := s.Stop(); err != nil {
			log.Fatalf("Failed to stop service: %v", err)
		}
		fmt.Println("Service stopped.")

	case "uninstall":
		s.Stop() // ignore error
		if err := s.Uninstall(); err != nil {
			log.Fatalf("Failed to uninstall service: %v", err)
		}
		fmt.Println("Service uninstalled.")

	case "status":
		status, err := s.Status()
		if err != nil {
			fmt.Printf("Service status: not installed or error (%v)\n", err)
			return
		}
		switch status {
		case service.StatusRunning:
			fmt.Println("Service status: running")
		case service.StatusStopped:
			fmt.Println("Service status: stopped")
		default:
			fmt.Println("Service status: unknown")
		}

	default:
		if err := s.Run(); err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	}
}
