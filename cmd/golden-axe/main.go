package main

import (
	"context"
	"flag"
	"net"
	"net/http"
	_ "net/http/pprof"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/urfave/negroni"

	"github.com/indexsupply/golden-axe/db"
	"github.com/indexsupply/golden-axe/handlers/api"
	"github.com/indexsupply/golden-axe/metrics"
	"github.com/indexsupply/golden-axe/services"
	"github.com/indexsupply/golden-axe/types"
	"github.com/indexsupply/golden-axe/utils"
)

func main() {
	configPath := flag.String("config", "", "Path to the config file, if empty string defaults will be used")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := &types.Config{}
	err := utils.ReadConfig(cfg, *configPath)
	if err != nil {
		logrus.Fatalf("error reading config file: %v", err)
	}
	utils.Config = cfg
	logWriter, logger := utils.InitLogger()
	defer logWriter.Dispose()

	logger.WithFields(logrus.Fields{
		"config":  *configPath,
		"version": utils.BuildVersion,
		"release": utils.BuildRelease,
	}).Printf("starting")

	db.MustInitDB()
	err = db.ApplyEmbeddedDbSchema(-2)
	if err != nil {
		logger.Fatalf("error initializing db schema: %v", err)
	}

	if err := services.StartBlockFeed(logger); err != nil {
		logger.Fatalf("error starting block feed: %v", err)
	}
	if err := services.StartAccountService(ctx, logger); err != nil {
		logger.Fatalf("error starting account service: %v", err)
	}
	services.StartPlanCache()
	if cfg.RateLimit.Enabled {
		if err := services.StartCallRateLimiter(cfg.RateLimit.ProxyCount, cfg.RateLimit.Rate, cfg.RateLimit.Burst); err != nil {
			logger.Fatalf("error starting call rate limiter: %v", err)
		}
	}
	if err := services.StartIndexer(ctx, logger); err != nil {
		logger.Fatalf("error starting indexer: %v", err)
	}

	if cfg.Metrics.Enabled {
		err = metrics.StartMetricsServer(logger.WithField("module", "metrics"), cfg.Metrics.Host, cfg.Metrics.Port)
		if err != nil {
			logger.Fatalf("error starting metrics server: %v", err)
		}
	}

	if err := startWebserver(logger); err != nil {
		logger.Fatalf("error starting webserver: %v", err)
	}

	utils.WaitForCtrlC()
	logger.Println("exiting...")
	cancel()
	db.MustCloseDB()
}

func newRouter() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/query", api.ApiQuery).Methods("GET", "POST", "OPTIONS")
	router.HandleFunc("/query-live", api.ApiQueryLive).Methods("GET", "OPTIONS")
	router.HandleFunc("/status", api.ApiStatus).Methods("GET")
	// versioned aliases
	router.HandleFunc("/api/v1/query", api.ApiQuery).Methods("GET", "POST", "OPTIONS")
	router.HandleFunc("/api/v1/query-live", api.ApiQueryLive).Methods("GET", "OPTIONS")
	router.HandleFunc("/api/v1/status", api.ApiStatus).Methods("GET")
	router.HandleFunc("/api/v0/query", api.ApiQueryLegacy).Methods("POST", "OPTIONS")
	router.Use(api.CorsMiddleware)
	router.Use(api.RequestLogMiddleware)
	return router
}

func startWebserver(logger logrus.FieldLogger) error {
	router := newRouter()

	n := negroni.New()
	n.Use(negroni.NewRecovery())
	n.UseHandler(router)

	if utils.Config.Server.HttpReadTimeout == 0 {
		utils.Config.Server.HttpReadTimeout = time.Second * 15
	}
	if utils.Config.Server.HttpIdleTimeout == 0 {
		utils.Config.Server.HttpIdleTimeout = time.Second * 60
	}
	// no WriteTimeout, the live query endpoint holds its connection open
	srv := &http.Server{
		Addr:        utils.Config.Server.Host + ":" + utils.Config.Server.Port,
		ReadTimeout: utils.Config.Server.HttpReadTimeout,
		IdleTimeout: utils.Config.Server.HttpIdleTimeout,
		Handler:     n,
	}

	listener, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return err
	}
	go func() {
		logger.Infof("http server listening on %v", srv.Addr)
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("error serving http")
		}
	}()
	return nil
}
