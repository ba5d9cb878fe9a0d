package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v3"

	"example.com/cpergate/internal/common"
	"example.com/cpergate/internal/cper"
	"example.com/cpergate/internal/dmi"
	"example.com/cpergate/internal/report"
	"example.com/cpergate/internal/server"
)

type logConfig struct {
	Directory  string `yaml:"directory"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	MaxBackups int    `yaml:"maxBackups"`
	Compress   bool   `yaml:"compress"`
}

type dmiConfig struct {
	// Source is one of none, local or file.
	Source string `yaml:"source"`
	Path   string `yaml:"path"`
}

type config struct {
	Port         int       `yaml:"port"`
	StorageDir   string    `yaml:"storageDir"`
	MaxBlobBytes int64     `yaml:"maxBlobBytes"`
	Prefix       string    `yaml:"prefix"`
	Lang         string    `yaml:"lang"`
	DMI          dmiConfig `yaml:"dmi"`
	// Journal is the JSONL audit log of every checked blob.
	Journal string    `yaml:"journal"`
	Logs    logConfig `yaml:"logs"`
}

func loadConfig(path string) (config, error) {
	var cfg config
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return cfg, err
	}
	baseDir := filepath.Dir(path)
	resolvePath := func(p string) string {
		p = strings.TrimSpace(p)
		if p == "" {
			return ""
		}
		if filepath.IsAbs(p) {
			return filepath.Clean(p)
		}
		candidate := filepath.Clean(filepath.Join(baseDir, p))
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		return filepath.Clean(p)
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.StorageDir == "" {
		cfg.StorageDir = filepath.Join(".", "data")
	}
	if cfg.MaxBlobBytes <= 0 {
		cfg.MaxBlobBytes = server.DefaultMaxBlobBytes
	}
	if cfg.Lang == "" {
		cfg.Lang = string(report.LangEnglish)
	}
	lang, err := report.ParseLanguage(cfg.Lang)
	if err != nil {
		return cfg, err
	}
	cfg.Lang = string(lang)
	cfg.DMI.Source = strings.ToLower(strings.TrimSpace(cfg.DMI.Source))
	switch cfg.DMI.Source {
	case "":
		cfg.DMI.Source = "none"
	case "none", "local":
	case "file":
		cfg.DMI.Path = resolvePath(cfg.DMI.Path)
		if cfg.DMI.Path == "" {
			return cfg, fmt.Errorf("dmi source file needs a path")
		}
	default:
		return cfg, fmt.Errorf("unknown dmi source %q", cfg.DMI.Source)
	}
	if cfg.Journal != "" && !filepath.IsAbs(cfg.Journal) {
		cfg.Journal = filepath.Join(cfg.StorageDir, cfg.Journal)
	}
	if cfg.Logs.Directory == "" {
		cfg.Logs.Directory = filepath.Join(cfg.StorageDir, "logs")
	}
	if cfg.Logs.MaxSizeMB <= 0 {
		cfg.Logs.MaxSizeMB = 25
	}
	if cfg.Logs.MaxAgeDays <= 0 {
		cfg.Logs.MaxAgeDays = 7
	}
	if cfg.Logs.MaxBackups <= 0 {
		cfg.Logs.MaxBackups = 5
	}
	return cfg, nil
}

func setupLogging(cfg config) error {
	if err := os.MkdirAll(cfg.Logs.Directory, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	logFile := filepath.Join(cfg.Logs.Directory, "cperd.log")
	rotator := &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    cfg.Logs.MaxSizeMB,
		MaxAge:     cfg.Logs.MaxAgeDays,
		MaxBackups: cfg.Logs.MaxBackups,
		Compress:   cfg.Logs.Compress,
	}
	out := io.MultiWriter(os.Stdout, rotator)
	log.SetOutput(out)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	common.SetOutput(out)
	return nil
}

func loadDIMMs(c dmiConfig) (cper.DIMMResolver, error) {
	var (
		t   *dmi.Table
		err error
	)
	switch c.Source {
	case "local":
		t, err = dmi.Local()
	case "file":
		t, err = dmi.FromFile(c.Path)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	log.Printf("dmi: %d memory devices from %s", t.Len(), c.Source)
	return t, nil
}

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to configuration file")
	addr := flag.String("addr", "", "listen address (overrides config port)")
	readTimeout := flag.Duration("read-timeout", 60*time.Second, "HTTP read timeout")
	writeTimeout := flag.Duration("write-timeout", 60*time.Second, "HTTP write timeout")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := os.MkdirAll(cfg.StorageDir, 0o755); err != nil {
		log.Fatalf("storage dir: %v", err)
	}
	if err := setupLogging(cfg); err != nil {
		log.Fatalf("setup logging: %v", err)
	}
	listenAddr := fmt.Sprintf(":%d", cfg.Port)
	if *addr != "" {
		listenAddr = *addr
	}
	dimms, err := loadDIMMs(cfg.DMI)
	if err != nil {
		// Rendering still works without names; handles are printed instead.
		log.Printf("dmi: %v", err)
	}
	var audit *common.AuditLog
	if cfg.Journal != "" {
		audit = common.NewAuditLog(cfg.Journal)
	}
	srv, err := server.NewServer(server.Options{
		StorageDir:   cfg.StorageDir,
		MaxBlobBytes: cfg.MaxBlobBytes,
		Prefix:       cfg.Prefix,
		Language:     report.Language(cfg.Lang),
		DIMMs:        dimms,
		Audit:        audit,
	})
	if err != nil {
		log.Fatalf("server init: %v", err)
	}
	defer srv.Close()

	httpServer := &http.Server{
		Addr:         listenAddr,
		Handler:      server.NewRouter(srv),
		ReadTimeout:  *readTimeout,
		WriteTimeout: *writeTimeout,
	}

	log.Printf("cperd listening on %s", listenAddr)
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	log.Println("cperd stopped")
}
