package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"MinoriAI/internal/config"
	"MinoriAI/pkg/log"
	"MinoriAI/pkg/redis"

	"github.com/joho/godotenv"
)

func main() {
	logger := log.NewLogger()
	if err := godotenv.Load(); err != nil && os.Getenv("APP_ENV") != "production" {
		logger.Fatalf("Error loading .env file: %v", err)
	}

	env, err := config.LoadEnv()
	if err != nil {
		logger.Fatal(err)
	}

	startupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	options := []config.ServerOption{
		config.WithFiber(config.NewFiber(logger)),
		config.WithLogger(logger),
		config.WithEnv(env),
		config.WithValidator(config.NewValidator()),
		config.WithDatabase(),
		config.WithMiddleware(),
		config.WithUtils(),
		config.WithGeminiClient(),
		config.WithKnowledgeBase(startupCtx),
	}
	if env.RedisAddress != "" {
		options = append(options, config.WithRedisServer(redis.New()))
	}
	options = append(options,
		config.WithAdvisor(),
		config.WithClassifiers(startupCtx),
	)

	server, err := config.NewServer(options...)
	if err != nil {
		logger.Fatal(err)
	}

	if err := server.RegisterHandler(); err != nil {
		logger.Fatal(err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.Run(); err != nil {
			logger.Fatalf("Error starting server: %v", err)
		}
	}()

	logger.Info("Server started successfully")

	<-sigChan
	logger.Info("Shutting down server...")
	if err := server.Shutdown(10 * time.Second); err != nil {
		logger.Errorf("Error during shutdown: %v", err)
	}
}
