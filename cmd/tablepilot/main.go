// Package main wires together the tablepilot service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/tablepilot/internal/api"
	"github.com/JakeFAU/tablepilot/internal/clock/system"
	"github.com/JakeFAU/tablepilot/internal/config"
	"github.com/JakeFAU/tablepilot/internal/dispatcher"
	"github.com/JakeFAU/tablepilot/internal/driver/cdp"
	"github.com/JakeFAU/tablepilot/internal/hash/sha256"
	"github.com/JakeFAU/tablepilot/internal/id/uuid"
	"github.com/JakeFAU/tablepilot/internal/logging"
	"github.com/JakeFAU/tablepilot/internal/metrics"
	"github.com/JakeFAU/tablepilot/internal/pilot"
	"github.com/JakeFAU/tablepilot/internal/policy/backoff"
	"github.com/JakeFAU/tablepilot/internal/policy/proxy"
	"github.com/JakeFAU/tablepilot/internal/policy/ratelimit"
	"github.com/JakeFAU/tablepilot/internal/poller"
	memorypublisher "github.com/JakeFAU/tablepilot/internal/publisher/memory"
	pubsubpublisher "github.com/JakeFAU/tablepilot/internal/publisher/pubsub"
	queueMemory "github.com/JakeFAU/tablepilot/internal/queue/memory"
	"github.com/JakeFAU/tablepilot/internal/recognizer/tesseract"
	collysource "github.com/JakeFAU/tablepilot/internal/source/colly"
	"github.com/JakeFAU/tablepilot/internal/storage/gcs"
	"github.com/JakeFAU/tablepilot/internal/storage/local"
	memoryStorage "github.com/JakeFAU/tablepilot/internal/storage/memory"
	"github.com/JakeFAU/tablepilot/internal/storage/postgres"
	"github.com/JakeFAU/tablepilot/internal/worker"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk := system.New()
	idGen := uuid.New()
	hasher := sha256.New()

	// Optical channel: DevTools driver plus the OCR engine. A client that is
	// not up yet degrades the process to structured-only instead of killing
	// it.
	var driver *cdp.Driver
	if cfg.Driver.Kind != "none" {
		drv, err := cdp.New(cdp.Config{
			Kind:        cfg.Driver.Kind,
			RemoteURL:   cfg.Driver.RemoteURL,
			ExecPath:    cfg.Driver.ExecPath,
			StartURL:    cfg.Driver.StartURL,
			Headless:    cfg.Driver.Headless,
			DryRun:      cfg.Driver.DryRun,
			CallTimeout: time.Duration(cfg.Driver.CallTimeoutSecond) * time.Second,
		}, logger.Named("cdp"))
		if err != nil {
			logger.Warn("driver init failed; optical channel disabled", zap.Error(err))
		} else if err := drv.Start(ctx); err != nil {
			logger.Warn("driver start failed; optical channel disabled", zap.Error(err))
			drv.Close()
		} else {
			driver = drv
			defer driver.Close()
		}
	}

	recognizer := tesseract.New(tesseract.Config{
		Binary:    cfg.Recognizer.Binary,
		Languages: cfg.Recognizer.Languages,
		Timeout:   time.Duration(cfg.Recognizer.TimeoutSeconds) * time.Second,
	}, logger.Named("ocr"))
	if !recognizer.Available() {
		logger.Warn("ocr engine not found; optical reads will fail",
			zap.String("binary", cfg.Recognizer.Binary))
	}

	keywords := pilot.DefaultScreenKeywords()
	if len(cfg.Screen.LobbyKeywords) > 0 {
		keywords.Lobby = cfg.Screen.LobbyKeywords
	}
	if len(cfg.Screen.TableKeywords) > 0 {
		keywords.Table = cfg.Screen.TableKeywords
	}
	if len(cfg.Screen.LoginKeywords) > 0 {
		keywords.Login = cfg.Screen.LoginKeywords
	}
	if len(cfg.Screen.PopupKeywords) > 0 {
		keywords.Popup = cfg.Screen.PopupKeywords
	}
	classifier := pilot.NewScreenClassifier(recognizer, keywords)

	parser := pilot.NewLobbyParser(recognizer, pilot.LobbyParserConfig{
		RowMinHeight: cfg.Parser.RowMinHeight,
		RowMaxHeight: cfg.Parser.RowMaxHeight,
		Threshold:    cfg.Parser.Threshold,
		RowPadding:   cfg.Parser.RowPadding,
		DefaultSeats: cfg.Parser.DefaultSeats,
		GameKeywords: cfg.Parser.GameKeywords,
		SeatCeiling:  cfg.Parser.SeatCeiling,
	}, logger.Named("parser"))

	limiter := ratelimit.New(ratelimit.Config{
		TokensPerSecond: cfg.Limiter.TokensPerSecond,
		Capacity:        cfg.Limiter.Capacity,
		PollInterval:    time.Duration(cfg.Limiter.PollIntervalMs) * time.Millisecond,
	})
	var proxies pilot.ProxyPicker
	if len(cfg.Proxy.Endpoints) > 0 {
		proxies = proxy.New(proxy.Config{
			Endpoints:        cfg.Proxy.Endpoints,
			Mode:             proxy.Mode(cfg.Proxy.Mode),
			FailureThreshold: cfg.Proxy.FailureThreshold,
			DisableFor:       time.Duration(cfg.Proxy.DisableForSeconds) * time.Second,
		})
	}
	delays := backoff.New(backoff.Config{
		Mode:   backoff.Mode(cfg.Backoff.Mode),
		Base:   time.Duration(cfg.Backoff.BaseMs) * time.Millisecond,
		Min:    time.Duration(cfg.Backoff.MinMs) * time.Millisecond,
		Max:    time.Duration(cfg.Backoff.MaxMs) * time.Millisecond,
		Factor: cfg.Backoff.Factor,
	})

	httpSource := collysource.New(collysource.Config{
		Timeout: time.Duration(cfg.Endpoint.TimeoutSeconds) * time.Second,
	}, logger.Named("source"))
	structured := pilot.NewStructuredEntrySource(httpSource, cfg.Endpoint, proxies, delays,
		pilot.StructuredSourceConfig{
			Retries: cfg.Scheduler.Retries,
			Mapping: pilot.MappingConfig{
				RowSelector:  cfg.Endpoint.RowSelector,
				GameKeywords: cfg.Parser.GameKeywords,
				SeatCeiling:  cfg.Parser.SeatCeiling,
				DefaultSeats: cfg.Parser.DefaultSeats,
			},
		}, logger.Named("structured"))

	var matcher *pilot.WindowMatcher
	sources := []pilot.EntrySource{structured}
	if driver != nil {
		matcher = pilot.NewWindowMatcher(driver, pilot.WindowMatcherConfig{
			MinWidth:   cfg.Window.MinWidth,
			MinHeight:  cfg.Window.MinHeight,
			BorderSide: cfg.Window.BorderSide,
			BorderTop:  cfg.Window.BorderTop,
			Scores:     cfg.Window.Scores,
		}, logger.Named("window"))
		sources = append(sources,
			pilot.NewOpticalEntrySource(matcher, cfg.Window.Query, driver, classifier, parser, logger.Named("optical")))
	}

	scheduler := pilot.NewScheduler(limiter, sources, pilot.SchedulerConfig{
		CacheTTL:       time.Duration(cfg.Scheduler.CacheTTLSeconds) * time.Second,
		AcquireTimeout: time.Duration(cfg.Scheduler.AcquireTimeoutSeconds) * time.Second,
		Order:          pilot.StrategyOrder(cfg.Scheduler.Order),
	}, clk, logger.Named("scheduler"))

	var snapshots pilot.SnapshotStore
	if cfg.Storage.SnapshotBackend == "postgres" {
		pgStore, err := postgres.NewSnapshotStore(ctx, postgres.SnapshotStoreConfig{
			DSN:             cfg.DB.DSN,
			Table:           cfg.DB.Table,
			MaxConns:        int32(cfg.DB.MaxConns),
			MinConns:        int32(cfg.DB.MinConns),
			MaxConnLifetime: time.Duration(cfg.DB.LifetimeSeconds) * time.Second,
		})
		if err != nil {
			logger.Fatal("snapshot store init failed", zap.Error(err))
		}
		defer pgStore.Close()
		snapshots = pgStore
	} else {
		snapshots = memoryStorage.NewSnapshotStore(0)
	}

	var blobs pilot.BlobStore
	switch cfg.Storage.BlobBackend {
	case "local":
		localStore, err := local.New(local.Config{BaseDir: cfg.Storage.LocalDir})
		if err != nil {
			logger.Fatal("local blob store init failed", zap.Error(err))
		}
		blobs = localStore
	case "gcs":
		gcsClient, err := gcstorage.NewClient(ctx)
		if err != nil {
			logger.Fatal("gcs client init failed", zap.Error(err))
		}
		gcsStore, err := gcs.New(ctx, gcsClient, gcs.Config{Bucket: cfg.Storage.GCSBucket})
		if err != nil {
			logger.Fatal("gcs blob store init failed", zap.Error(err))
		}
		blobs = gcsStore
	default:
		blobs = memoryStorage.NewBlobStore()
	}

	var publisher pilot.Publisher
	stopPublisher := func() {}
	if cfg.PubSub.Enabled {
		psClient, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Fatal("pubsub client init failed", zap.Error(err))
		}
		psPublisher, err := pubsubpublisher.New(psClient)
		if err != nil {
			logger.Fatal("pubsub publisher init failed", zap.Error(err))
		}
		publisher = psPublisher
		stopPublisher = psPublisher.Stop
	} else {
		publisher = memorypublisher.New()
	}

	var sessions pilot.SessionStore
	if cfg.Storage.SessionBackend == "postgres" {
		pgSessions, err := postgres.NewSessionStore(ctx, postgres.SessionStoreConfig{
			DSN:             cfg.DB.DSN,
			Table:           cfg.DB.JobsTable,
			MaxConns:        int32(cfg.DB.MaxConns),
			MinConns:        int32(cfg.DB.MinConns),
			MaxConnLifetime: time.Duration(cfg.DB.LifetimeSeconds) * time.Second,
		})
		if err != nil {
			logger.Fatal("session store init failed", zap.Error(err))
		}
		defer pgSessions.Close()
		sessions = pgSessions
	} else {
		sessions = memoryStorage.NewSessionStore()
	}
	queue := queueMemory.NewQueue(cfg.Seats.QueueDepth)

	var seater worker.Seater
	if driver != nil {
		windowWait, windowPoll := cfg.WindowWait()
		seater = pilot.NewNavigator(matcher, cfg.Window.Query, driver, recognizer, classifier, parser,
			driver, blobs, clk, pilot.NavigatorConfig{
				WindowWait:      windowWait,
				WindowPoll:      windowPoll,
				LoopPause:       time.Duration(cfg.Navigator.LoopPauseMs) * time.Millisecond,
				SettlePause:     time.Duration(cfg.Navigator.SettlePauseMs) * time.Millisecond,
				DefaultTimeout:  time.Duration(cfg.Navigator.DefaultTimeoutSeconds) * time.Second,
				MaxScrolls:      cfg.Navigator.MaxScrolls,
				ScrollAmount:    cfg.Navigator.ScrollAmount,
				DismissKeywords: cfg.Navigator.DismissKeywords,
				ConfirmKeywords: cfg.Navigator.ConfirmKeywords,
				ArchiveFrames:   cfg.Navigator.ArchiveFrames,
				ArchivePrefix:   cfg.Storage.Prefix,
			}, logger.Named("navigator"))
	} else {
		logger.Warn("no driver attached; seat requests will fail until one is configured")
	}

	dispatch := dispatcher.New(
		queue,
		sessions,
		seater,
		publisher,
		clk,
		worker.Config{Topic: cfg.PubSub.SeatTopic},
		dispatcher.Config{Workers: cfg.Seats.Workers},
		logger,
	)

	apiServer := api.NewServer(sessions, snapshots, scheduler, dispatch, idGen, clk, cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("dispatcher started", zap.Int("workers", dispatch.Workers()))
		dispatch.Run(ctx)
	}()

	if cfg.Poller.Enabled {
		lobbyPoller := poller.New(scheduler, snapshots, publisher, hasher, idGen, clk, poller.Config{
			Interval: cfg.PollInterval(),
			Topic:    cfg.PubSub.LobbyTopic,
		}, logger.Named("poller"))
		go func() {
			logger.Info("lobby poller started", zap.Duration("interval", cfg.PollInterval()))
			lobbyPoller.Run(ctx)
		}()
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	queue.Close()
	stopPublisher()
	logger.Info("shutdown complete")
}
