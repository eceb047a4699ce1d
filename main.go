package main

import (
	"context"

	"github.com/bsm/redislock"
	"go.uber.org/zap"

	"github.com/cppla/bharatinvest/catalog"
	"github.com/cppla/bharatinvest/config"
	"github.com/cppla/bharatinvest/ledger"
	"github.com/cppla/bharatinvest/models"
	"github.com/cppla/bharatinvest/recorder"
	"github.com/cppla/bharatinvest/routes"
	"github.com/cppla/bharatinvest/scheduler"
	"github.com/cppla/bharatinvest/store"
	"github.com/cppla/bharatinvest/utils"
	"github.com/cppla/bharatinvest/wallet"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}

	db := config.InitDatabase(&models.User{}, &models.Account{}, &models.Transaction{}, &models.Investment{})

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		utils.Sugar.Fatalf("load catalog: %v", err)
	}
	engine := ledger.NewEngine(cfg.LedgerRules(), cat, nil, nil)

	var rec recorder.Recorder = recorder.NewNoopRecorder()
	if cfg.RecorderPath != "" {
		sqliteRec, err := recorder.NewSQLiteRecorder(cfg.RecorderPath)
		if err != nil {
			utils.Sugar.Fatalf("open recorder: %v", err)
		}
		rec = sqliteRec
	}

	// Redis is optional: without it there is no cross-instance lock, push or cache.
	rc := utils.GetRedis()
	var locker *redislock.Client
	if rc != nil {
		locker = redislock.New(rc)
	} else {
		utils.Logger.Warn("redis unavailable; account locking and live updates disabled")
	}

	st := store.NewGormStore(db, store.NewNotifier(rc, utils.Logger))
	svc := wallet.NewService(st, engine, locker, rec, utils.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	sched := scheduler.NewScheduler(ctx, svc, utils.Logger.Named("scheduler"), cfg.SweepBatch)
	if err := sched.RegisterAll(cfg.SweepCron); err != nil {
		utils.Sugar.Fatalf("scheduler: %v", err)
	}
	sched.Start()

	r := routes.SetupRouter(routes.Dependencies{
		Wallet:   svc,
		Users:    st,
		Reporter: st,
		Catalog:  cat,
	})

	utils.Logger.Info("starting server (graceful)", zap.String("port", cfg.AppPort), zap.Int("plans", len(cat.Plans)))
	hooks := []func(){
		func() {
			cancel()
			sched.Stop()
		},
		func() {
			if err := rec.Close(); err != nil {
				utils.Logger.Warn("close recorder", zap.Error(err))
			}
		},
	}
	if cfg.TLSCertFile != "" && cfg.TLSKeyFile != "" {
		err = utils.GraceServerTLS(":"+cfg.AppPort, cfg.TLSCertFile, cfg.TLSKeyFile, r, hooks...)
	} else {
		err = utils.GraceServer(":"+cfg.AppPort, r, hooks...)
	}
	if err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}
