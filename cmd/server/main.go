package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"votesecret/impl/auth"
	"votesecret/impl/core"
	"votesecret/internal/config"
	"votesecret/internal/database"
	"votesecret/internal/http-server/api"
	"votesecret/internal/relay"
	"votesecret/internal/telegram"
	"votesecret/internal/workers"
	"votesecret/lib/logger"
	"votesecret/lib/sl"
)

type store interface {
	core.Repository
	auth.Database
}

func main() {
	configPath := flag.String("conf", "config.yml", "path to config file")
	logPath := flag.String("log", "/var/log/", "path to log file directory")
	flag.Parse()

	conf := config.MustLoad(*configPath)
	log := logger.SetupLogger(conf.Env, *logPath)
	log.Info("starting votesecret", slog.String("config", *configPath), slog.String("env", conf.Env))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if conf.Telegram.Enabled {
		minLevel, err := logger.ParseLevel(conf.Telegram.MinLevel)
		if err != nil {
			log.Error("telegram min level", sl.Err(err))
		}
		sender, err := telegram.New(conf.Telegram.ApiKey, conf.Telegram.ChatID, conf.Telegram.FlushInterval, log)
		if err != nil {
			log.Error("telegram", sl.Err(err))
		} else {
			sender.Start()
			defer sender.Stop()
			log = slog.New(logger.NewTelegramHandler(log.Handler(), sender, minLevel))
			log.Info("telegram alerts enabled", slog.String("min_level", minLevel.String()))
		}
	}

	var db store
	mongo := database.NewMongoClient(conf, log)
	if mongo != nil {
		connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		err := mongo.Connect(connectCtx)
		cancel()
		if err != nil {
			log.Error("mongo client", sl.Err(err))
			return
		}
		defer mongo.Close()
		db = mongo
		log.With(
			slog.String("host", conf.Mongo.Host),
			slog.String("port", conf.Mongo.Port),
			slog.String("user", conf.Mongo.User),
			slog.String("database", conf.Mongo.Database),
		).Info("mongo client initialized")
	} else {
		db = database.NewMemoryDB()
		log.Warn("mongo disabled, meetings are kept in memory")
	}

	handler := core.New(db, core.Config{
		CodeLength:           conf.Meeting.CodeLength,
		ScrutatorPrefix:      conf.Meeting.ScrutatorCodePrefix,
		HeartbeatTTL:         conf.Meeting.HeartbeatTTL,
		OrganizerAbsentAfter: conf.Meeting.OrganizerAbsentAfter,
		ReportRequestTTL:     conf.Meeting.ReportRequestTTL,
		ReportTTL:            conf.Meeting.ReportTTL,
	}, log)
	defer handler.Stop()
	handler.SetAuthService(auth.New(db))

	hub := relay.NewHub(log)
	go hub.Run(ctx)
	handler.SetNotifier(hub)

	jobs := workers.New(handler, conf.Meeting.SweepInterval, conf.Meeting.PollSweepInterval, log)
	jobs.Start(ctx)

	// blocking call
	if err := api.New(ctx, conf, log, handler, hub); err != nil {
		log.Error("server", sl.Err(err))
		stop()
	}

	jobs.Wait()
	log.Info("server stopped")
}
