package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"MinoriAI/internal/advisory"
	"MinoriAI/internal/classifier"
	"MinoriAI/internal/config"
	"MinoriAI/internal/entity"
	"MinoriAI/internal/knowledge"
	"MinoriAI/pkg/gemini"
	"MinoriAI/pkg/log"
	"MinoriAI/pkg/redis"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type commandContext struct {
	envFile *string

	envOnce sync.Once
	env     config.Env
	envErr  error
}

func newCommandContext(envFile *string) *commandContext {
	return &commandContext{envFile: envFile}
}

// ensureEnv loads the dotenv file, if any, and then the process
// configuration. A missing dotenv file is not an error for the CLI.
func (c *commandContext) ensureEnv() (config.Env, error) {
	c.envOnce.Do(func() {
		if c.envFile != nil {
			path := strings.TrimSpace(*c.envFile)
			if path != "" {
				if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
					c.envErr = fmt.Errorf("load %s: %w", path, err)
					return
				}
			}
		}
		c.env, c.envErr = config.LoadEnv()
	})
	return c.env, c.envErr
}

func (c *commandContext) logger() *logrus.Logger {
	return log.NewLogger()
}

// gemini returns a client when the configuration needs one and nil
// otherwise.
func (c *commandContext) gemini(required bool) (gemini.IGemini, error) {
	if !required && os.Getenv("GEMINI_API_KEY") == "" {
		return nil, nil
	}
	client, err := gemini.NewGeminiClient()
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return client, nil
}

func (c *commandContext) loadModels(ctx context.Context, env config.Env, gem gemini.IGemini, crops []entity.Crop) (*classifier.Registry, error) {
	return classifier.LoadRegistry(ctx, crops, config.NewClassifierFactory(env, gem, c.logger()))
}

// openAdvisor builds the same advisory chain the server uses. The returned
// close func releases the vector store and the redis client.
func (c *commandContext) openAdvisor(ctx context.Context, env config.Env, gem gemini.IGemini) (advisory.Lookup, func(), error) {
	logger := c.logger()

	store, err := config.NewVectorStore(ctx, env, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open vector store: %w", err)
	}

	generator, err := config.NewGenerator(gem, logger)
	if err != nil {
		store.Close()
		return nil, nil, err
	}

	var shared redis.IRedis
	if env.RedisAddress != "" {
		shared = redis.New()
	}

	retriever := knowledge.NewRetriever(store, gem, env.RetrievalTopK)
	lookup := config.NewAdvisor(env, retriever, generator, shared, logger)

	closeFn := func() {
		if shared != nil {
			shared.Close()
		}
		store.Close()
	}
	return lookup, closeFn, nil
}
