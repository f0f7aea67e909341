package main

import (
	"cmp"
	"context"
	"errors"
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

	"example.com/edidgen/internal/common"
	"example.com/edidgen/internal/report"
	"example.com/edidgen/internal/request"
	"example.com/edidgen/internal/server"
	"example.com/edidgen/internal/vic"
)

type logConfig struct {
	Directory  string `yaml:"directory"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	MaxBackups int    `yaml:"maxBackups"`
	Compress   bool   `yaml:"compress"`
}

type config struct {
	Port        int            `yaml:"port"`
	StorageDir  string         `yaml:"storageDir"`
	VICTable    string         `yaml:"vicTable"`
	Vendor      string         `yaml:"vendor"`
	ProductName string         `yaml:"productName"`
	Lang        string         `yaml:"lang"`
	FreezeYear  int            `yaml:"freezeYear"`
	DSC         request.Policy `yaml:"dsc"`
	Logs        logConfig      `yaml:"logs"`
}

// loadConfig decodes a YAML config, fills defaults and resolves relative
// paths against the config file's directory. An empty file is valid.
func loadConfig(path string) (config, error) {
	var cfg config
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("decode %s: %w", path, err)
	}
	if cfg.FreezeYear < 0 {
		return cfg, fmt.Errorf("freezeYear %d out of range", cfg.FreezeYear)
	}
	cfg.Lang = cmp.Or(cfg.Lang, string(report.LangEnglish))
	if _, err := report.ParseLanguage(cfg.Lang); err != nil {
		return cfg, err
	}

	rel := relativeTo(filepath.Dir(path))
	cfg.Port = cmp.Or(cfg.Port, 8080)
	cfg.DSC = cmp.Or(cfg.DSC, request.PolicyAuto)
	cfg.StorageDir = cmp.Or(rel(cfg.StorageDir), "data")
	cfg.VICTable = rel(cfg.VICTable)
	cfg.Logs.Directory = cmp.Or(rel(cfg.Logs.Directory), filepath.Join(cfg.StorageDir, "logs"))
	cfg.Logs.MaxSizeMB = positiveOr(cfg.Logs.MaxSizeMB, 25)
	cfg.Logs.MaxAgeDays = positiveOr(cfg.Logs.MaxAgeDays, 7)
	cfg.Logs.MaxBackups = positiveOr(cfg.Logs.MaxBackups, 5)
	return cfg, nil
}

// relativeTo returns a resolver that anchors relative paths at base and
// leaves blank values blank.
func relativeTo(base string) func(string) string {
	return func(p string) string {
		p = strings.TrimSpace(p)
		switch {
		case p == "":
			return ""
		case filepath.IsAbs(p):
			return filepath.Clean(p)
		default:
			return filepath.Join(base, p)
		}
	}
}

func positiveOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func setupLogging(cfg config) (io.Closer, error) {
	if err := os.MkdirAll(cfg.Logs.Directory, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Logs.Directory, "edidd.log"),
		MaxSize:    cfg.Logs.MaxSizeMB,
		MaxAge:     cfg.Logs.MaxAgeDays,
		MaxBackups: cfg.Logs.MaxBackups,
		Compress:   cfg.Logs.Compress,
	}
	out := io.MultiWriter(os.Stdout, rotator)
	log.SetOutput(out)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	common.SetLogOutput(out)
	return rotator, nil
}

// serverOptions turns the decoded config into server options.
func serverOptions(cfg config) (server.Options, error) {
	lang, err := report.ParseLanguage(cfg.Lang)
	if err != nil {
		return server.Options{}, err
	}
	opts := server.Options{
		StorageDir:  cfg.StorageDir,
		Vendor:      cfg.Vendor,
		ProductName: cfg.ProductName,
		DefaultDSC:  cfg.DSC,
		Lang:        lang,
	}
	if cfg.VICTable != "" {
		table, err := vic.LoadFile(cfg.VICTable)
		if err != nil {
			return server.Options{}, fmt.Errorf("vic table: %w", err)
		}
		opts.Table = table
	}
	if cfg.FreezeYear > 0 {
		frozen := time.Date(cfg.FreezeYear, time.January, 1, 0, 0, 0, 0, time.UTC)
		opts.Now = func() time.Time { return frozen }
	}
	return opts, nil
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
	rotator, err := setupLogging(cfg)
	if err != nil {
		log.Fatalf("setup logging: %v", err)
	}
	defer rotator.Close()
	listenAddr := fmt.Sprintf(":%d", cfg.Port)
	if *addr != "" {
		listenAddr = *addr
	}

	opts, err := serverOptions(cfg)
	if err != nil {
		log.Fatalf("server options: %v", err)
	}
	srv, err := server.NewServer(opts)
	if err != nil {
		log.Fatalf("server init: %v", err)
	}
	defer srv.Close()

	router, err := server.NewRouter(srv)
	if err != nil {
		log.Fatalf("router init: %v", err)
	}
	httpServer := &http.Server{
		Addr:         listenAddr,
		Handler:      router,
		ReadTimeout:  *readTimeout,
		WriteTimeout: *writeTimeout,
	}

	log.Printf("edidd listening on %s (dsc=%s, lang=%s)", listenAddr, cfg.DSC, cfg.Lang)
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
	log.Printf("edidd stopped: %s", srv.Stats())
}
