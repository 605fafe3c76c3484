package main

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"

	"github.com/lmittmann/tint"
	log "log/slog"

	"voxm2m/internal/archive"
	"voxm2m/internal/config"
	"voxm2m/internal/ipc"
	"voxm2m/internal/nlu"
	"voxm2m/internal/poller"
	"voxm2m/internal/proxy"
	"voxm2m/internal/statusapi"
	"voxm2m/pkg/m2m"
	"voxm2m/pkg/protocol"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

func main() {
	cfgPath := cli.StringP("config", "c", config.DefaultPath, "Config file path")
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	proxyAddr := cli.StringP("proxy", "p", "", "Socks proxy address for recognizer APIs")
	logLevel := cli.StringP("log", "l", "info", "Log level")
	cli.Parse()

	log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      logLevelMap[*logLevel],
		TimeFormat: time.TimeOnly,
	})))

	log.Info("Booting up")

	godotenv.Load(*envFile)

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		log.Error("Failed to load config", "path", *cfgPath, "err", err)
		os.Exit(1)
	}
	if *proxyAddr != "" {
		cfg.Proxy = *proxyAddr
	}

	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			TracesSampleRate: 0.2,
			Environment:      os.Getenv("VOX_ENV"),
		})
		if err != nil {
			log.Warn("Sentry init failed", "err", err)
		} else {
			log.Debug("Loaded sentry")
			defer sentry.Flush(2 * time.Second)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Error("Daemon failed", "err", err)
		sentry.CaptureException(err)
		sentry.Flush(2 * time.Second)
		os.Exit(1)
	}

	log.Info("Shut down")
}

// loadConfig falls back to defaults and environment when no file exists.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Warn("Config file not found, using defaults", "path", path)
		return config.Parse(nil)
	}
	return cfg, err
}

func run(ctx context.Context, cfg *config.Config) error {
	apiClient, err := proxy.NewSocksClient(cfg.Proxy, cfg.Recognizer.Timeout)
	if err != nil {
		return err
	}
	log.Debug("Loaded proxy", "addr", cfg.Proxy)

	store, err := m2m.NewClient(m2m.Config{
		BaseURL: cfg.Store.BaseURL,
		Origin:  cfg.Store.Origin,
		Timeout: cfg.Store.Timeout,
	})
	if err != nil {
		return err
	}

	rec, closeRec, err := newRecognizer(cfg, apiClient)
	if err != nil {
		return err
	}
	defer closeRec()

	readyCtx, cancel := context.WithTimeout(ctx, cfg.Recognizer.Timeout)
	err = rec.Ready(readyCtx)
	cancel()
	if err != nil {
		return err
	}
	log.Debug("Loaded recognizer", "transcriber", cfg.Recognizer.Transcriber, "matcher", cfg.Recognizer.Matcher)

	dcfg := nlu.DispatcherConfig{
		Store:   store,
		Devices: cfg.Devices,
		HubTo:   cfg.Hub.To,
	}
	var hub *protocol.Protocol
	if cfg.Hub.URL != "" {
		hub, err = protocol.NewProtocol(protocol.PtclConfig{
			Shard:  cfg.Hub.Shard,
			Url:    cfg.Hub.URL,
			Reconn: time.Duration(cfg.Hub.Reconn) * time.Second,
		})
		if err != nil {
			return err
		}
		defer hub.Close()
		dcfg.Mirror = hub
		log.Debug("Loaded hub", "url", cfg.Hub.URL)
	}
	dispatcher := nlu.NewDispatcher(dcfg)

	var arch *archive.Archive
	if cfg.Archive.Path != "" {
		arch, err = archive.Open(cfg.Archive.Path)
		if err != nil {
			return err
		}
		defer arch.Close()
		log.Debug("Loaded archive", "path", cfg.Archive.Path)
	}

	clipSink, err := newClipSink(ctx, cfg.Clips)
	if err != nil {
		return err
	}

	onDispatch, err := newFeedback(cfg.Feedback)
	if err != nil {
		return err
	}

	pollers := make([]*poller.Poller, 0, len(cfg.Sources))
	for _, src := range cfg.Sources {
		opts := poller.Opts{
			Name:             src.Name,
			Path:             src.Path,
			Interval:         cfg.Interval(),
			Threshold:        cfg.ThresholdValue(),
			RecognizeTimeout: cfg.Recognizer.Timeout,
			Retries:          cfg.Dispatch.Retries,
			Store:            store,
			Recognizer:       rec,
			Catalog:          cfg.Catalog,
			Dispatcher:       dispatcher,
			OnDispatch:       onDispatch,
		}
		if arch != nil {
			opts.Archive = arch
		}
		if clipSink != nil {
			opts.Clips = clipSink
		}

		p, err := poller.New(opts)
		if err != nil {
			return err
		}
		pollers = append(pollers, p)
	}

	ctl := newControl(pollers)
	if err := ipc.StartServer(ctx, cfg.IPC.Socket, ctl.ipcHandler); err != nil {
		return err
	}

	var wg sync.WaitGroup
	for _, p := range pollers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Run(ctx)
		}()
	}

	if hub != nil {
		hub.EmitOut(ctl.hubHandler(hub))
		wg.Add(1)
		go func() {
			defer wg.Done()
			hub.Run(ctx)
		}()
	}

	if cfg.Status.Addr != "" {
		opts := statusapi.StartOpts{Addr: cfg.Status.Addr}
		for _, p := range pollers {
			opts.Pollers = append(opts.Pollers, p)
		}
		if arch != nil {
			opts.Archive = arch
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := statusapi.Start(ctx, opts); err != nil {
				log.Error("Status API failed", "err", err)
			}
		}()
	}

	log.Info("Boot up - successful", "sources", len(pollers))

	wg.Wait()
	return nil
}
