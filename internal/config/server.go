package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"MinoriAI/database/postgres"
	"MinoriAI/internal/advisory"
	detectionHandler "MinoriAI/internal/api/detection/handler"
	detectionRepository "MinoriAI/internal/api/detection/repository"
	detectionService "MinoriAI/internal/api/detection/service"
	"MinoriAI/internal/classifier"
	"MinoriAI/internal/entity"
	"MinoriAI/internal/knowledge"
	"MinoriAI/internal/middleware"
	"MinoriAI/internal/session"
	"MinoriAI/pkg/gemini"
	"MinoriAI/pkg/redis"
	"MinoriAI/pkg/utils"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

type ServerOption func(*Server) error

type Server struct {
	engine      *fiber.App
	env         Env
	db          *sqlx.DB
	log         *logrus.Logger
	middleware  middleware.Middleware
	validator   *validator.Validate
	utils       utils.IUtils
	handlers    []handler
	redisServer redis.IRedis
	gemini      gemini.IGemini
	vectors     *VectorStore
	retriever   *knowledge.Retriever
	advisor     advisory.Lookup
	models      *classifier.Registry
	sessions    *session.Manager

	cancel context.CancelFunc
}

type handler interface {
	Start(srv fiber.Router)
}

func NewServer(options ...ServerOption) (*Server, error) {
	server := &Server{}

	for _, option := range options {
		if err := option(server); err != nil {
			server.Close()
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if server.engine == nil {
		return nil, fmt.Errorf("fiber app is required")
	}
	if server.log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if server.models == nil {
		return nil, fmt.Errorf("classifiers are required")
	}
	if server.advisor == nil {
		return nil, fmt.Errorf("advisor is required")
	}

	return server, nil
}

func WithFiber(fiberApp *fiber.App) ServerOption {
	return func(s *Server) error {
		s.engine = fiberApp
		return nil
	}
}

func WithLogger(logger *logrus.Logger) ServerOption {
	return func(s *Server) error {
		s.log = logger
		return nil
	}
}

func WithEnv(env Env) ServerOption {
	return func(s *Server) error {
		s.env = env
		return nil
	}
}

func WithValidator(validator *validator.Validate) ServerOption {
	return func(s *Server) error {
		s.validator = validator
		return nil
	}
}

// WithDatabase connects to postgres when one is configured. Without it the
// detection history endpoints are disabled.
func WithDatabase() ServerOption {
	return func(s *Server) error {
		if !postgres.Configured() {
			if s.log != nil {
				s.log.Info("No database configured, detection history disabled")
			}
			return nil
		}

		db, err := postgres.New()
		if err != nil {
			if s.log != nil {
				s.log.Errorf("Failed to connect to database: %v", err)
			}
			return fmt.Errorf("failed to create database connection: %w", err)
		}
		s.db = db
		return nil
	}
}

func WithRedisServer(redisServer redis.IRedis) ServerOption {
	return func(s *Server) error {
		s.redisServer = redisServer
		return nil
	}
}

func WithMiddleware() ServerOption {
	return func(s *Server) error {
		if s.log == nil {
			return fmt.Errorf("logger must be initialized before middleware")
		}
		s.middleware = middleware.New(s.log, middleware.Config{
			RateLimit: s.env.RateLimit,
			RateBurst: s.env.RateBurst,
		})
		return nil
	}
}

func WithGeminiClient() ServerOption {
	return func(s *Server) error {
		client, err := gemini.NewGeminiClient()
		if err != nil {
			if s.log != nil {
				s.log.Errorf("Failed to create Gemini client: %v", err)
			}
			return fmt.Errorf("failed to create Gemini client: %w", err)
		}
		s.gemini = client
		return nil
	}
}

// WithKnowledgeBase opens the vector store and, when INDEX_ON_START is set,
// indexes the advisory corpus. Gemini provides the embeddings.
func WithKnowledgeBase(ctx context.Context) ServerOption {
	return func(s *Server) error {
		if s.gemini == nil {
			return fmt.Errorf("gemini client must be initialized before the knowledge base")
		}

		store, err := NewVectorStore(ctx, s.env, s.log)
		if err != nil {
			return fmt.Errorf("failed to open vector store: %w", err)
		}
		s.vectors = store

		if s.env.IndexOnStart {
			if _, err := BuildIndex(ctx, s.env, store, s.gemini, false, s.log); err != nil {
				return fmt.Errorf("failed to index knowledge base: %w", err)
			}
		}

		s.retriever = knowledge.NewRetriever(store, s.gemini, s.env.RetrievalTopK)
		return nil
	}
}

func WithAdvisor() ServerOption {
	return func(s *Server) error {
		if s.retriever == nil {
			return fmt.Errorf("knowledge base must be initialized before the advisor")
		}

		generator, err := NewGenerator(s.gemini, s.log)
		if err != nil {
			return err
		}
		s.advisor = NewAdvisor(s.env, s.retriever, generator, s.redisServer, s.log)
		return nil
	}
}

// WithClassifiers loads one model per crop. Any failure aborts startup.
func WithClassifiers(ctx context.Context) ServerOption {
	return func(s *Server) error {
		registry, err := classifier.LoadRegistry(ctx, entity.Crops(), NewClassifierFactory(s.env, s.gemini, s.log))
		if err != nil {
			if s.log != nil {
				s.log.Errorf("Failed to load classifiers: %v", err)
			}
			return err
		}
		s.models = registry
		return nil
	}
}

func WithUtils() ServerOption {
	return func(s *Server) error {
		s.utils = utils.New()
		return nil
	}
}

func (s *Server) RegisterHandler() error {
	sessionConfig, err := s.env.SessionConfig()
	if err != nil {
		return err
	}
	s.sessions = session.NewManager(sessionConfig, s.models, s.advisor, s.env.SessionIdleTTL, s.log)

	// Detection
	var detectionRepo detectionRepository.Repository
	if s.db != nil {
		detectionRepo = detectionRepository.New(s.db, s.log)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := detectionRepo.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("failed to prepare detections table: %w", err)
		}
	}
	detectionServices := detectionService.NewDetectionService(s.log, s.sessions, s.models, s.advisor, detectionRepo, s.utils)
	detectionHandlers := detectionHandler.New(s.log, s.validator, s.middleware, detectionServices, s.utils)

	s.setupHealthCheck()
	s.handlers = append(s.handlers, detectionHandlers)
	return nil
}

func (s *Server) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.sessions.Run(ctx)

	s.engine.Use(s.middleware.NewRequestIDMiddleware())
	s.engine.Use(s.middleware.NewLoggingMiddleware())
	mountRoutes(s.engine, s.handlers)

	if err := s.engine.Listen(fmt.Sprintf(":%s", s.env.AppPort)); err != nil {
		return err
	}

	return nil
}

// mountRoutes serves every handler under /api/v1 and at the root, where
// the existing front ends still post frames.
func mountRoutes(app fiber.Router, handlers []handler) {
	versioned := app.Group("/api/v1")
	for _, h := range handlers {
		h.Start(versioned)
		h.Start(app)
	}
}

// Shutdown stops accepting requests and releases every client.
func (s *Server) Shutdown(timeout time.Duration) error {
	if s.cancel != nil {
		s.cancel()
	}
	err := s.engine.ShutdownWithTimeout(timeout)
	return errors.Join(err, s.Close())
}

// Close releases external clients. It is safe on a partially built server.
func (s *Server) Close() error {
	var errs []error
	if s.models != nil {
		s.models.Close()
	}
	if s.vectors != nil {
		errs = append(errs, s.vectors.Close())
	}
	if s.gemini != nil {
		s.gemini.Close()
	}
	if s.redisServer != nil {
		errs = append(errs, s.redisServer.Close())
	}
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}
	return errors.Join(errs...)
}

func (s *Server) setupHealthCheck() {
	s.engine.Get("/", func(ctx *fiber.Ctx) error {
		crops := make([]string, 0, len(s.models.Crops()))
		for _, c := range s.models.Crops() {
			crops = append(crops, c.String())
		}

		return ctx.JSON(fiber.Map{
			"message":  "Server is Healthy!",
			"crops":    crops,
			"sessions": s.sessions.Len(),
			"history":  s.db != nil,
			"shared":   s.redisServer != nil,
		})
	})
}
