package main

import (
	"context"
	"log"

	"github.com/vbonduro/stocktake/internal/blobstore/local"
	"github.com/vbonduro/stocktake/internal/config"
	"github.com/vbonduro/stocktake/internal/db"
	"github.com/vbonduro/stocktake/internal/inventory"
	"github.com/vbonduro/stocktake/internal/logging"
	"github.com/vbonduro/stocktake/internal/netmon"
	"github.com/vbonduro/stocktake/internal/notify"
	"github.com/vbonduro/stocktake/internal/pending"
	"github.com/vbonduro/stocktake/internal/session"
	"github.com/vbonduro/stocktake/internal/store"
	"github.com/vbonduro/stocktake/internal/web"
)

func main() {
	cfg := config.Load()

	logger, cleanup, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer cleanup()

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		return
	}
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inv := inventory.NewClient(cfg.InventoryBaseURL, cfg.InventoryAPIKey)

	photoStore, err := local.NewLocalBlobStore(cfg.PhotoPath)
	if err != nil {
		logger.Error("failed to initialize photo store", "error", err)
		return
	}

	monitor := netmon.NewProbeMonitor(cfg.ProbeURL, cfg.ProbeInterval, logger)
	go monitor.Run(ctx)

	syncer, err := pending.NewSyncer(ctx, store.NewPendingStore(database), inv, logger, nil)
	if err != nil {
		logger.Error("failed to initialize update syncer", "error", err)
		return
	}

	agg := session.NewAggregator(notify.NewLogNotifier(logger), store.NewAlertStore(database), logger)
	engine := session.NewEngine(inv, syncer, photoStore, store.NewSessionStore(database), monitor, agg, logger)
	defer engine.Close()

	go func() {
		for ev := range engine.Events() {
			logger.Debug("session event", "type", ev.Type, "session_id", ev.SessionID, "area_item_id", ev.AreaItemID)
		}
	}()

	server := web.NewServer(engine, logger)
	if err := server.ListenAndServe(cfg.ListenAddr); err != nil {
		logger.Error("server error", "error", err)
	}
}
