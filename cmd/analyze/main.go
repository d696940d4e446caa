// Command analyze runs one Content Understanding analysis from the command line
// and prints the result JSON.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bryanwahyu/cu-relay/internal/config"
	domain "github.com/bryanwahyu/cu-relay/internal/domain/analysis"
	"github.com/bryanwahyu/cu-relay/internal/infra/contentunderstanding"
)

type args struct {
	ConfigPath string
	AnalyzerID string
	File       string
	Timeout    time.Duration
	Interval   time.Duration
}

// parseArgs does not read os.Args so tests can pass arbitrary slices.
func parseArgs(argv []string) (*args, error) {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	a := &args{}
	fs.StringVar(&a.ConfigPath, "config", envOr("CONFIG_PATH", "config.yaml"), "Path to config file")
	fs.StringVar(&a.AnalyzerID, "analyzer", "", "Analyzer ID (default: contentUnderstanding.analyzerId)")
	fs.StringVar(&a.File, "file", "", "Local file path or http(s) URL to analyze (required)")
	fs.DurationVar(&a.Timeout, "timeout", 0, "Polling timeout (default: contentUnderstanding.pollTimeout)")
	fs.DurationVar(&a.Interval, "interval", 0, "Polling interval (default: contentUnderstanding.pollInterval)")

	if err := fs.Parse(argv); err != nil {
		return nil, err
	}
	if a.File == "" && fs.NArg() > 0 {
		a.File = fs.Arg(0)
	}
	if a.File == "" {
		return nil, fmt.Errorf("-file is required")
	}
	if a.Timeout < 0 || a.Interval < 0 {
		return nil, fmt.Errorf("-timeout and -interval must not be negative")
	}
	return a, nil
}

// settingsFrom merges flags over the loaded config.
func settingsFrom(cfg *config.Config, a *args) domain.Settings {
	s := cfg.AnalysisSettings()
	if a.AnalyzerID != "" {
		s.AnalyzerID = a.AnalyzerID
	}
	s.FileLocation = a.File
	return s
}

func main() {
	log.SetFlags(0)
	a, err := parseArgs(os.Args[1:])
	if err != nil {
		log.Fatalf("usage: analyze -file <path|url> [-analyzer id] [-config path] [-timeout d] [-interval d]: %v", err)
	}

	cfg, err := config.Load(a.ConfigPath)
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	settings := settingsFrom(cfg, a)
	if settings.AnalyzerID == "" {
		log.Fatalf("no analyzer: pass -analyzer or set contentUnderstanding.analyzerId")
	}

	client, err := contentunderstanding.NewFromSettings(settings, &http.Client{Timeout: cfg.ContentUnderstanding.RequestTimeout})
	if err != nil {
		log.Fatalf("client init error: %v", err)
	}

	timeout, interval := cfg.ContentUnderstanding.PollTimeout, cfg.ContentUnderstanding.PollInterval
	if a.Timeout > 0 {
		timeout = a.Timeout
	}
	if a.Interval > 0 {
		interval = a.Interval
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	op, err := client.Submit(ctx, settings.AnalyzerID, settings.FileLocation)
	if err != nil {
		log.Fatalf("submit failed: %v", err)
	}
	log.Printf("submitted: analyzer=%s operation=%s", settings.AnalyzerID, op.Location)

	res, err := client.Poll(ctx, op, timeout, interval)
	if err != nil {
		log.Fatalf("analysis failed: %v", err)
	}

	var out bytes.Buffer
	if err := json.Indent(&out, res.Body, "", "  "); err != nil {
		out.Reset()
		out.Write(res.Body)
	}
	out.WriteByte('\n')
	os.Stdout.Write(out.Bytes())
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
