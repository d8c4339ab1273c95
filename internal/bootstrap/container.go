package bootstrap

import (
	"context"
	"fmt"

	"ai-chatflow-be/internal/config"
	"ai-chatflow-be/internal/controller"
	"ai-chatflow-be/internal/handler"
	"ai-chatflow-be/internal/pkg/logger"
	"ai-chatflow-be/internal/pkg/mailer"
	"ai-chatflow-be/internal/pkg/serverutils"
	"ai-chatflow-be/internal/repository/memory"
	"ai-chatflow-be/internal/repository/unitofwork"
	"ai-chatflow-be/internal/service"
	"ai-chatflow-be/internal/websocket"
	"ai-chatflow-be/pkg/chat/assistant"
	"ai-chatflow-be/pkg/chat/gateway"
	"ai-chatflow-be/pkg/chat/orchestrator"
	"ai-chatflow-be/pkg/chat/session"
	"ai-chatflow-be/pkg/chat/store"
	"ai-chatflow-be/pkg/chat/titlesync"
	"ai-chatflow-be/pkg/events"
	"ai-chatflow-be/pkg/llm/factory"
	pktNats "ai-chatflow-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	// Controllers
	AuthController    controller.IAuthController
	OAuthController   controller.IOAuthController
	ChatController    controller.IChatController
	ChatStreamHandler *handler.ChatStreamHandler

	// Background workers (run by main)
	WebSocketHub       *websocket.Hub
	TitleConsumer      *titlesync.Consumer
	ActivityService    service.IActivityService
	ActivitySubscriber *pktNats.Subscriber // nil without NATS
	Orchestrator       *orchestrator.Orchestrator

	closers []func()
}

func NewContainer(db *gorm.DB, cfg *config.Config, sysLogger logger.ILogger) (*Container, error) {
	c := &Container{}

	// 1. Core facades
	uowFactory := unitofwork.NewRepositoryFactory(db)
	jwtMiddleware := serverutils.NewJwtMiddleware(cfg.Auth.JwtSecret)
	tokens := service.TokenConfig{Secret: cfg.Auth.JwtSecret, TTL: cfg.Auth.TokenTTL}

	var emailService mailer.IEmailService = mailer.NopEmailService{}
	if cfg.SMTP.Host != "" {
		emailService = mailer.NewEmailService(
			cfg.SMTP.Host,
			cfg.SMTP.Port,
			cfg.SMTP.Email,
			cfg.SMTP.Password,
			cfg.SMTP.SenderName,
			cfg.App.ClientURL,
			sysLogger,
		)
	}

	// 2. Messaging
	pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, watermill.NewStdLogger(false, false))
	c.closers = append(c.closers, func() { pubSub.Close() })

	var eventPublisher events.Publisher
	if cfg.App.NatsURL != "" {
		natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL, sysLogger)
		if err != nil {
			sysLogger.Warn("BOOTSTRAP", "NATS publisher unavailable, domain events disabled", map[string]interface{}{"error": err.Error()})
		} else {
			eventPublisher = natsPub
			c.closers = append(c.closers, natsPub.Close)
		}

		natsSub, err := pktNats.NewSubscriber(cfg.App.NatsURL, sysLogger)
		if err != nil {
			sysLogger.Warn("BOOTSTRAP", "NATS subscriber unavailable, activity log disabled", map[string]interface{}{"error": err.Error()})
		} else {
			c.ActivitySubscriber = natsSub
			c.closers = append(c.closers, natsSub.Close)
		}
	}

	var rdb *redis.Client
	if cfg.App.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.App.RedisURL)
		if err != nil {
			opt = &redis.Options{Addr: cfg.App.RedisURL}
		}
		rdb = redis.NewClient(opt)
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			sysLogger.Warn("BOOTSTRAP", "Redis unreachable, events stay on this instance", map[string]interface{}{"error": err.Error()})
		}
		c.closers = append(c.closers, func() { rdb.Close() })
	}
	c.WebSocketHub = websocket.NewHub(rdb, sysLogger)

	// 3. AI
	llmProvider, err := factory.NewLLMProvider(factory.ProviderConfig{
		Provider: cfg.Ai.LLMProvider,
		Model:    cfg.Ai.LLMModel,
		BaseURL:  cfg.Ai.LLMBaseURL,
		ApiKey:   cfg.Ai.LLMApiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM provider: %w", err)
	}
	sysLogger.Info("BOOTSTRAP", "LLM provider ready", map[string]interface{}{"provider": cfg.Ai.LLMProvider, "model": cfg.Ai.LLMModel})

	// 4. Chat core
	gw := gateway.New(uowFactory, sysLogger)
	c.Orchestrator = orchestrator.New(gw, assistant.New(llmProvider, sysLogger),
		orchestrator.WithPublisher(eventPublisher),
		orchestrator.WithLogger(sysLogger),
		orchestrator.WithReplyTimeout(cfg.Ai.ReplyTimeout),
		orchestrator.WithModelName(cfg.Ai.LLMModel),
	)

	titles := titlesync.NewPublisher(pubSub, titlesync.Topic, sysLogger)
	titleConsumer, err := titlesync.NewConsumer(pubSub, titlesync.Topic, gw, sysLogger)
	if err != nil {
		return nil, err
	}
	c.TitleConsumer = titleConsumer

	sessions := session.NewManager(
		memory.NewSessionRepository(cfg.App.SessionTTL),
		func(userId uuid.UUID) *store.Store {
			return store.New(userId, gw,
				store.WithNotifier(c.WebSocketHub),
				store.WithTitleSink(titles),
				store.WithSeeder(c.Orchestrator),
				store.WithLogger(sysLogger),
			)
		},
		sysLogger,
	)

	// 5. Services
	c.ActivityService = service.NewActivityService(logger.NewIsolatedLogger(cfg.App.ActivityLogPath))
	authService := service.NewAuthService(uowFactory, sessions, emailService, eventPublisher, tokens, sysLogger)
	oauthService := service.NewOAuthService(uowFactory, sessions, cfg.OAuth, tokens, sysLogger)
	chatService := service.NewChatService(sessions, c.Orchestrator)

	// 6. Controllers
	c.AuthController = controller.NewAuthController(authService, jwtMiddleware)
	c.OAuthController = controller.NewOAuthController(oauthService, cfg.App.ClientURL, sysLogger)
	c.ChatController = controller.NewChatController(chatService, c.ActivityService, jwtMiddleware)
	c.ChatStreamHandler = handler.NewChatStreamHandler(c.WebSocketHub, sessions, cfg.Auth.JwtSecret, sysLogger)

	return c, nil
}

// Close releases broker connections in reverse order of creation.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}
