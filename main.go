package main

import (
	"Omni/ai"
	"Omni/bot"
	"Omni/core"
	"Omni/lib/sl"
	"Omni/lib/tokenizer"
	"Omni/storage"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {

	configPath := flag.String("conf", "config.yml", "path to config file")
	flag.Parse()

	conf, err := core.GetConfig(*configPath)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	log := setupLogger(conf.Env)
	log.With(
		slog.String("config", *configPath),
		slog.String("env", conf.Env),
		slog.String("model", conf.Model),
		slog.String("storage", conf.Storage.Driver),
	).Info("starting omni bot")

	store := setupStorage(conf, log)

	openAI := ai.NewOpenAI(conf, log)
	vision := ai.NewVision(conf, log)

	var gemini *ai.Gemini
	if conf.GeminiApiKey != "" {
		gemini, err = ai.NewGemini(context.Background(), conf, log)
		if err != nil {
			log.Error("creating gemini client, capability stays unbound", sl.Err(err))
			gemini = nil
		}
	} else {
		log.Info("gemini api key not set, capability stays unbound")
	}

	validator := tokenizer.NewValidator(conf.MaxInputTokens)
	dispatcher := bot.NewDispatcher(store, ai.Adapters(openAI, gemini, vision), validator, log)

	tgBot, err := bot.NewTgBot(conf, log)
	if err != nil {
		log.Error("creating telegram", sl.Err(err))
		return
	}

	tgBot.SetDispatcher(dispatcher)

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start bot in goroutine
	go func() {
		if err := tgBot.Start(); err != nil {
			log.Error("bot stopped with error", sl.Err(err))
		}
	}()

	log.Info("bot started")

	// Wait for shutdown signal
	sig := <-sigChan
	log.Info("received signal, shutting down", slog.String("signal", sig.String()))

	// Graceful shutdown
	tgBot.Stop()

	if err := store.Close(); err != nil {
		log.Error("error closing storage", sl.Err(err))
	}

	log.Info("shutdown complete")
}

// setupStorage picks the persistence engine from config, falling back to
// memory when the durable one cannot be reached.
func setupStorage(conf *core.Config, log *slog.Logger) storage.Storage {
	switch conf.Storage.Driver {
	case "mongo":
		mongoURI := fmt.Sprintf("mongodb://%s:%s@%s:%s",
			conf.Storage.Mongo.User, conf.Storage.Mongo.Password,
			conf.Storage.Mongo.Host, conf.Storage.Mongo.Port)
		store, err := storage.NewMongoStorage(mongoURI, conf.Storage.Mongo.Database, log)
		if err != nil {
			log.With(
				slog.String("db", conf.Storage.Mongo.Database),
				slog.String("host", conf.Storage.Mongo.Host),
			).Error("falling back to memory", sl.Err(err))
			return storage.NewMemoryStorage()
		}
		log.Info("using MongoDB storage")
		return store
	case "sqlite":
		store, err := storage.NewSQLiteStorage(conf.Storage.SQLite.Path)
		if err != nil {
			log.With(
				slog.String("path", conf.Storage.SQLite.Path),
			).Error("falling back to memory", sl.Err(err))
			return storage.NewMemoryStorage()
		}
		log.Info("using SQLite storage")
		return store
	default:
		log.Info("using in-memory storage")
		return storage.NewMemoryStorage()
	}
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal, envDev:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}
