package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tmaeda/urwatch/config"
	"github.com/tmaeda/urwatch/crawler"
	"github.com/tmaeda/urwatch/diff"
	"github.com/tmaeda/urwatch/export"
	"github.com/tmaeda/urwatch/extract"
	"github.com/tmaeda/urwatch/models"
	"github.com/tmaeda/urwatch/notify"
	"github.com/tmaeda/urwatch/renderer"
	"github.com/tmaeda/urwatch/snapshot"
	"github.com/tmaeda/urwatch/targets"
)

func main() {
	// Local .env carries SMTP credentials and optional overrides.
	_ = godotenv.Load()

	defaultCfg := config.DefaultConfig()
	outputDefault := defaultCfg.OutputDir
	if value, ok := config.EnvString("URWATCH_OUTPUT_DIR"); ok {
		outputDefault = value
	}
	delayDefault := defaultCfg.RequestDelay
	if value, ok, err := config.EnvDuration("URWATCH_DELAY"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid URWATCH_DELAY: %v\n", err)
		os.Exit(1)
	} else if ok {
		delayDefault = value
	}
	retriesDefault := defaultCfg.MaxRetries
	if value, ok, err := config.EnvInt("URWATCH_MAX_RETRIES"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid URWATCH_MAX_RETRIES: %v\n", err)
		os.Exit(1)
	} else if ok {
		retriesDefault = value
	}
	metricsDefault := defaultCfg.MetricsAddr
	if value, ok := config.EnvString("URWATCH_METRICS_ADDR"); ok {
		metricsDefault = value
	}

	configFile := flag.String("config", "", "YAML config file path")
	targetFile := flag.String("file", "", "Text file containing listing URLs")
	csvFile := flag.String("csv", "", "CSV roster with listing URLs and predefined fields")
	outputDir := flag.String("output", outputDefault, "Snapshot output directory")
	outputFormat := flag.String("format", defaultCfg.OutputFormat, "Extra report format: json, csv, txt, or dual")
	delay := flag.Duration("delay", delayDefault, "Pacing delay between targets")
	settle := flag.Duration("settle", defaultCfg.SettleDelay, "Settle delay after navigation")
	navTimeout := flag.Duration("nav-timeout", defaultCfg.NavigationTimeout, "Per-attempt navigation timeout")
	maxRetries := flag.Int("max-retries", retriesDefault, "Maximum navigation attempts per target")
	retryBackoff := flag.Duration("retry-backoff", defaultCfg.RetryBackoff, "Initial retry backoff")
	retryBackoffMax := flag.Duration("retry-backoff-max", defaultCfg.RetryBackoffMax, "Maximum retry backoff")
	doNotify := flag.Bool("notify", defaultCfg.Notify, "Send notification mail when changes are detected")
	metricsAddr := flag.String("metrics-addr", metricsDefault, "Prometheus metrics listen address (e.g. :9090)")
	verbose := flag.Bool("v", false, "Enable verbose logging")

	flag.Parse()

	logger, level := newLogger(*verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	cfg := defaultCfg
	if *configFile != "" {
		if err := cfg.LoadFile(*configFile); err != nil {
			slog.Error("loading config file", slog.Any("error", err))
			os.Exit(1)
		}
	}
	applyFlags(cfg, *outputDir, *outputFormat, *delay, *settle, *navTimeout,
		*maxRetries, *retryBackoff, *retryBackoffMax, *doNotify, *metricsAddr, *verbose)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	targetList, err := loadTargets(flag.Args(), *targetFile, *csvFile)
	if err != nil {
		slog.Error("loading targets", slog.Any("error", err))
		os.Exit(1)
	}
	if len(targetList) == 0 {
		slog.Error("no targets to check; pass URLs, -file, or -csv")
		os.Exit(1)
	}

	// Notification credentials are a precondition: fail before the first
	// page visit, not after half an hour of polite crawling.
	var sender *notify.Sender
	if cfg.Notify {
		smtpCfg, err := notify.LoadSMTPConfig()
		if err != nil {
			slog.Error("notification configuration", slog.Any("error", err))
			os.Exit(1)
		}
		sender = notify.NewSender(smtpCfg)
	}

	browser, err := renderer.NewHTTPBrowser(cfg.UserAgent, cfg.NavigationTimeout)
	if err != nil {
		slog.Error("initialising renderer", slog.Any("error", err))
		os.Exit(1)
	}
	defer browser.Close()

	classifier := extract.DefaultClassifier()
	classifier.CompleteRowImpliesVacant = cfg.CompleteRowImpliesVacant
	extractor := extract.New(extract.DefaultRules(), classifier)

	c := crawler.New(cfg, browser, extractor)

	store, err := snapshot.NewStore(cfg.OutputDir)
	if err != nil {
		slog.Error("initialising snapshot store", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, finishing in-flight target")
	}()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(c.Metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	slog.Info("starting vacancy check",
		slog.Int("targets", len(targetList)),
		slog.Duration("delay", cfg.RequestDelay),
		slog.Int("max_retries", cfg.MaxRetries),
	)

	start := time.Now()
	results := c.Run(ctx, targetList)

	snap := models.NewRunSnapshot(time.Now(), results)

	decision := diff.NewEngine(store).Decide(results)

	snapPath, err := store.Save(snap)
	if err != nil {
		slog.Error("saving snapshot", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("snapshot saved", slog.String("path", snapPath))

	if err := writeReport(cfg.OutputFormat, snapPath, results); err != nil {
		slog.Error("writing report", slog.Any("error", err))
		os.Exit(1)
	}

	if decision.ShouldNotify && sender != nil {
		msg := notify.Compose(decision, snap)
		if err := sender.Send(msg); err != nil {
			slog.Error("sending notification", slog.Any("error", err))
			os.Exit(1)
		}
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	printSummary(snap, decision, time.Since(start), snapPath)
}

func applyFlags(cfg *config.Config, outputDir, outputFormat string, delay, settle, navTimeout time.Duration,
	maxRetries int, retryBackoff, retryBackoffMax time.Duration, doNotify bool, metricsAddr string, verbose bool) {
	cfg.OutputDir = outputDir
	cfg.OutputFormat = strings.ToLower(outputFormat)
	cfg.RequestDelay = delay
	cfg.SettleDelay = settle
	cfg.NavigationTimeout = navTimeout
	cfg.MaxRetries = maxRetries
	cfg.RetryBackoff = retryBackoff
	cfg.RetryBackoffMax = retryBackoffMax
	cfg.Notify = doNotify
	cfg.MetricsAddr = metricsAddr
	cfg.Verbose = verbose
}

func loadTargets(urls []string, textFile, csvFile string) ([]models.Target, error) {
	switch {
	case csvFile != "":
		return targets.FromCSVFile(csvFile)
	case textFile != "":
		return targets.FromTextFile(textFile)
	default:
		return targets.FromURLs(urls), nil
	}
}

// writeReport emits the extra flat report alongside the snapshot when a
// non-JSON format is selected.
func writeReport(format, snapPath string, results []models.PropertyResult) error {
	base := strings.TrimSuffix(snapPath, filepath.Ext(snapPath))

	var (
		writer export.OutputWriter
		err    error
	)
	switch format {
	case "json":
		return nil
	case "csv":
		writer, err = export.NewCSVWriter(base + ".csv")
	case "txt":
		writer, err = export.NewTextWriter(base + ".txt")
	case "dual":
		writer, err = export.NewDualWriter(base+".csv", base+".txt")
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
	if err != nil {
		return err
	}

	if err := writer.Write(results); err != nil {
		writer.Close()
		return err
	}
	if err := writer.Validate(); err != nil {
		writer.Close()
		return err
	}
	return writer.Close()
}

func printSummary(snap *models.RunSnapshot, decision models.Decision, duration time.Duration, snapPath string) {
	succeeded, failed := 0, 0
	for i := range snap.Results {
		if snap.Results[i].Status == models.StatusSuccess {
			succeeded++
		} else {
			failed++
		}
	}

	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Vacancy check complete")
	fmt.Printf("  Targets:       %d\n", snap.TotalChecked)
	fmt.Printf("  Succeeded:     %d\n", succeeded)
	fmt.Printf("  Failed:        %d\n", failed)
	fmt.Printf("  Vacant units:  %d\n", snap.TotalVacantUnits)
	fmt.Printf("  Notify:        %v (%s)\n", decision.ShouldNotify, decision.Reason)
	fmt.Printf("  Duration:      %v\n", duration)
	fmt.Printf("  Snapshot:      %s\n", snapPath)
	fmt.Println(separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
