package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/lcorbani/volman/internal/logger"
	"github.com/lcorbani/volman/pkg/cache"
	"github.com/lcorbani/volman/pkg/config"
	"github.com/lcorbani/volman/pkg/metrics"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: "+config.GetDefaultConfigPath()+")")
	logLevel := flag.String("log-level", "", "Override log level (DEBUG, INFO, WARN, ERROR)")
	fullScan := flag.Bool("full-scan", false, "Re-read every device instead of reusing cached results")
	showInternal := flag.Bool("internal", false, "Include orphan pseudo-VGs in the report")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	logger.SetLevel(cfg.Logging.Level)
	if err := configureLogOutput(cfg.Logging.Output); err != nil {
		log.Fatalf("Failed to configure log output: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Metrics are optional; without InitRegistry the cache runs no-op
	// instrumentation.
	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		metricsServer = metrics.NewServer(metrics.ServerConfig{Port: cfg.Metrics.Port})
		go func() {
			if err := metricsServer.Start(ctx); err != nil {
				logger.Error("Metrics server: %v", err)
			}
		}()
	}

	devices, err := config.CreateDeviceLayer(&cfg.Devices)
	if err != nil {
		log.Fatalf("Failed to create device layer: %v", err)
	}

	formats, err := config.CreateFormats(cfg.Formats)
	if err != nil {
		log.Fatalf("Failed to create format backends: %v", err)
	}

	daemonClient, err := config.CreateDaemonClient(&cfg.Daemon)
	if err != nil {
		log.Fatalf("Failed to create daemon client: %v", err)
	}

	filterCache, err := config.CreateFilterCache(&cfg.FilterCache)
	if err != nil {
		log.Fatalf("Failed to open filter cache: %v", err)
	}
	if filterCache != nil {
		defer func() {
			if err := filterCache.Close(); err != nil {
				logger.Error("Failed to close filter cache: %v", err)
			}
		}()
	}

	c, err := cache.New(cache.Options{
		Devices:             devices,
		Formats:             formats,
		Daemon:              daemonClient,
		FilterCache:         filterCache,
		LongLived:           cfg.Cache.LongLived,
		Hostname:            config.Hostname(&cfg.Cache),
		CacheVGMetadata:     cfg.Cache.CacheVGMetadata,
		DetectCorruption:    cfg.Cache.DetectCorruption,
		ReuseCheckThreshold: cfg.Cache.ReuseCheckThreshold,
		Metrics:             metrics.NewCacheMetrics(),
	})
	if err != nil {
		log.Fatalf("Failed to create metadata cache: %v", err)
	}
	defer c.Destroy(false, true)

	mode := cache.ScanCached
	if *fullScan {
		mode = cache.ScanFullRefresh
	}
	if err := c.LabelScan(mode); err != nil {
		log.Fatalf("Device scan failed: %v", err)
	}

	report(c, *showInternal)

	if c.FoundDuplicates() {
		logger.Warn("Duplicate PVs were detected; only the first device seen for each PV is in use")
	}

	if metricsServer != nil {
		logger.Info("Scan complete; serving metrics until interrupted")
		<-ctx.Done()
	}
}

// report prints the discovered VGs and their member PVs.
func report(c *cache.Cache, showInternal bool) {
	pairs := c.VGNameIDs(showInternal)
	if len(pairs) == 0 {
		fmt.Println("No volume groups found")
		return
	}

	pvMax, vgMax := c.MaxNameLengths()
	for _, pair := range pairs {
		fmt.Printf("VG %-*s %s\n", vgMax, pair.Name, pair.ID)
		for _, pvid := range c.PVIDs(pair.Name, pair.ID) {
			dev, err := c.DeviceFromPVID(pvid)
			if err != nil {
				logger.Warn("PV %s has no device: %v", pvid, err)
				continue
			}
			fmt.Printf("  PV %-*s %s (%d bytes)\n", pvMax, dev.Name, pvid, dev.Size)
		}
	}
}

// configureLogOutput points the logger at stdout, stderr, or a file.
func configureLogOutput(output string) error {
	switch output {
	case "stderr", "":
		logger.SetOutput(os.Stderr)
		return nil
	case "stdout":
		return nil
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		logger.SetOutput(f)
		return nil
	}
}
