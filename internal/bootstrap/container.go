package bootstrap

import (
	"context"
	"io"
	"log"

	"studykit-be/internal/config"
	"studykit-be/internal/controller"
	"studykit-be/internal/handler"
	"studykit-be/internal/pkg/logger"
	"studykit-be/internal/repository/memory"
	"studykit-be/internal/service"
	"studykit-be/internal/websocket"
	"studykit-be/pkg/ai/pipeline"
	"studykit-be/pkg/llm/factory"
	"studykit-be/pkg/prompt"

	pktNats "studykit-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
)

type Container struct {
	// Controllers
	StudyController controller.IStudyController

	// Background Services (Exposed for main.go to run)
	ConsumerService service.IConsumerService

	// WebSockets
	ProgressHandler *handler.ProgressHandler
	WebSocketHub    *websocket.Hub

	Logger logger.ILogger

	closers []io.Closer
	cancel  context.CancelFunc
}

func NewContainer(cfg *config.Config) *Container {
	ctx, cancel := context.WithCancel(context.Background())

	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")
	c := &Container{Logger: sysLogger, cancel: cancel}

	gateway, err := factory.NewGateway(ctx, factory.Settings{
		Provider: cfg.Ai.LLMProvider,
		Model:    cfg.Ai.LLMModel,
		BaseURL:  cfg.BaseURLFor(cfg.Ai.LLMProvider),
		APIKey:   cfg.APIKeyFor(cfg.Ai.LLMProvider),
		Timeout:  cfg.Ai.RequestTimeout,
	})
	if err != nil {
		log.Fatalf("[FATAL] Failed to initialize LLM Provider: %v", err)
	}
	if closer, ok := gateway.(io.Closer); ok {
		c.closers = append(c.closers, closer)
	}
	log.Printf("[INFO] Using LLM Provider: %s (%s)", gateway.Name(), cfg.Ai.LLMModel)

	prompts, err := prompt.Default()
	if err != nil {
		log.Fatalf("[FATAL] Failed to load prompt catalog: %v", err)
	}

	// 2. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 64},
		watermillLogger,
	)
	c.closers = append(c.closers, pubSub)

	// 2.5 Infrastructure
	// Session Storage
	sessionRepo := memory.NewSessionRepository(cfg.Kit.SessionTTL, cfg.Kit.MaxImages)

	// NATS (optional)
	var runs pipeline.RunPublisher = pipeline.NopRunPublisher{}
	if cfg.App.NatsURL != "" {
		natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
		if err != nil {
			log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
		} else {
			runs = pipeline.NewNatsRunPublisher(natsPub, sysLogger)
			c.closers = append(c.closers, closerFunc(natsPub.Close))
		}
	}

	// Redis (optional)
	var rdb *redis.Client
	if cfg.App.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.App.RedisURL)
		if err != nil {
			log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
			opt = &redis.Options{
				Addr: cfg.App.RedisURL,
			}
		}
		rdb = redis.NewClient(opt)
		if _, err := rdb.Ping(ctx).Result(); err != nil {
			log.Printf("[WARN] Failed to connect to Redis: %v", err)
		}
		c.closers = append(c.closers, rdb)
	}

	// WebSocket Hub
	wsLogger := logger.NewIsolatedLogger(cfg.App.HubLogFilePath)
	wsHub := websocket.NewHub(rdb, wsLogger)
	go wsHub.Run(ctx)

	// 3. Pipeline
	reducer := pipeline.NewReducer(sessionRepo.Lookup, runs, sysLogger)
	reducer.Subscribe(wsHub.SessionChanged)

	deps := pipeline.Deps{
		Gateway: gateway,
		Prompts: prompts,
		Reducer: reducer,
		Bus:     pipeline.NewWatermillBus(pubSub, pipeline.DefaultTopic),
		Runs:    runs,
		Logger:  sysLogger,
		Config: pipeline.Config{
			QuestionsPerBatch: cfg.Kit.QuestionsPerBatch,
			FlashcardCount:    cfg.Kit.FlashcardCount,
			BonusContextChars: cfg.Kit.BonusContextChars,
			UsedFactsMaxChars: cfg.Kit.UsedFactsMaxChars,
		},
	}

	// 4. Services
	consumerService := service.NewConsumerService(pubSub, pipeline.DefaultTopic, reducer, sysLogger)
	studyService := service.NewStudyService(
		sessionRepo,
		pipeline.NewOrchestrator(deps),
		pipeline.NewExtensionEngine(deps),
		pipeline.NewClarifier(deps),
		reducer,
		cfg.Kit.MaxImages,
		sysLogger,
	)

	// 5. Controllers
	c.StudyController = controller.NewStudyController(studyService)
	c.ProgressHandler = handler.NewProgressHandler(studyService, wsHub, wsLogger)
	c.WebSocketHub = wsHub
	c.ConsumerService = consumerService
	return c
}

// Close stops background loops and releases connections.
func (c *Container) Close() {
	c.cancel()
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].Close(); err != nil {
			log.Printf("[WARN] Close: %v", err)
		}
	}
	_ = c.Logger.Sync()
}

type closerFunc func()

func (f closerFunc) Close() error {
	f()
	return nil
}
