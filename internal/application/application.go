package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/psds-microservice/field-service/internal/assistant"
	"github.com/psds-microservice/field-service/internal/config"
	"github.com/psds-microservice/field-service/internal/database"
	"github.com/psds-microservice/field-service/internal/gateway"
	grpcserver "github.com/psds-microservice/field-service/internal/grpc"
	"github.com/psds-microservice/field-service/internal/handler"
	"github.com/psds-microservice/field-service/internal/kafka"
	"github.com/psds-microservice/field-service/internal/knowledge"
	"github.com/psds-microservice/field-service/internal/llm"
	"github.com/psds-microservice/field-service/internal/metrics"
	"github.com/psds-microservice/field-service/internal/router"
	"github.com/psds-microservice/field-service/internal/service"
	"github.com/psds-microservice/field-service/internal/session"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// SetupLogger настраивает slog по умолчанию: JSON в production, текст иначе.
func SetupLogger(cfg *config.Config) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.LogLevel))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if cfg.IsProduction() {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h).With("service", grpcserver.ServiceName))
}

// Assistant — LLM-часть сервиса: клиент модели и индекс руководства.
type Assistant struct {
	Client *llm.Client
	Index  *knowledge.Index
}

// NewAssistant создаёт клиента модели и открывает векторный индекс руководства.
func NewAssistant(cfg *config.Config) (*Assistant, error) {
	model, embedder, err := llm.NewProvider(llm.ProviderConfig{
		BaseURL:        cfg.LLM.BaseURL,
		APIKey:         cfg.LLM.APIKey,
		Model:          cfg.LLM.Model,
		EmbeddingModel: cfg.LLM.EmbeddingModel,
	})
	if err != nil {
		return nil, fmt.Errorf("llm provider: %w", err)
	}
	idx, err := knowledge.NewIndex(cfg.Knowledge.VectorDir, knowledge.EmbeddingFunc(embedder))
	if err != nil {
		return nil, fmt.Errorf("knowledge index: %w", err)
	}
	return &Assistant{Client: llm.NewClient(model, cfg.LLM.Timeout), Index: idx}, nil
}

// NewSessionStore выбирает бэкенд по SESSION_BACKEND.
func NewSessionStore(ctx context.Context, cfg *config.Config) (session.Store, func(), error) {
	switch cfg.Session.Backend {
	case "redis":
		client, err := session.NewRedisClient(ctx, cfg.Session.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("redis: %w", err)
		}
		return session.NewRedisStore(client, cfg.Session.IdleTTL), func() { client.Close() }, nil
	default:
		return session.NewMemoryStore(cfg.Session.IdleTTL), func() {}, nil
	}
}

// API приложение: HTTP + gRPC серверы (режим api).
type API struct {
	cfg       *config.Config
	db        *gorm.DB
	httpSrv   *http.Server
	grpcSrv   *grpcserver.Server
	lis       net.Listener
	gw        *gateway.Gateway
	producer  *kafka.Producer
	refresher *metrics.Refresher
	sessions  session.Store
	closeSess func()
}

// NewAPI создаёт приложение для режима api.
func NewAPI(ctx context.Context, cfg *config.Config) (*API, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := database.MigrateUp(ctx, cfg.DatabaseURL()); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	db, err := database.Open(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	a := &API{cfg: cfg, db: db}
	if err := a.wire(ctx); err != nil {
		database.Close(db)
		return nil, err
	}
	return a, nil
}

func (a *API) wire(ctx context.Context) error {
	cfg := a.cfg
	tickets := service.NewTicketService(a.db)

	sessions, closeSess, err := NewSessionStore(ctx, cfg)
	if err != nil {
		return err
	}
	a.sessions, a.closeSess = sessions, closeSess

	ai, err := NewAssistant(cfg)
	if err != nil {
		closeSess()
		return err
	}
	if cfg.LLMEnabled() {
		if err := knowledge.EnsureLoaded(ctx, ai.Index, cfg.Knowledge.FragmentsPath); err != nil {
			slog.Warn("knowledge: initial load failed, suggestions run without manual excerpts", "error", err)
		}
	} else {
		slog.Warn("LLM_API_KEY is not set: suggestions, chat and reports are disabled")
	}

	a.producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicTicket)
	a.gw = gateway.New(gateway.Deps{
		Tickets:    tickets,
		Sessions:   sessions,
		Knowledge:  ai.Index,
		Suggester:  assistant.NewSuggester(ai.Index, ai.Client, cfg.Knowledge.SuggestionTopK),
		Matcher:    assistant.NewMatcher(ai.Client),
		Reporter:   assistant.NewReporter(ai.Client, cfg.ReportMaxTokens),
		Classifier: assistant.NewClassifier(ai.Client),
		Producer:   a.producer,
	}, gateway.Options{
		SimilarMaxResults: cfg.SimilarMaxResults,
		ReportTopK:        cfg.Knowledge.SuggestionTopK,
	})

	metrics.Register(prometheus.DefaultRegisterer)
	a.grpcSrv = grpcserver.NewServer()
	a.refresher = metrics.NewRefresher(tickets, sessions, cfg.MetricsRefreshInterval, a.grpcSrv.SetDatabaseStatus)

	lis, err := net.Listen("tcp", cfg.GRPCAddr())
	if err != nil {
		closeSess()
		return fmt.Errorf("grpc listen %s: %w (порт занят — остановите другой процесс или задайте GRPC_PORT в .env)", cfg.GRPCAddr(), err)
	}
	a.lis = lis

	h := router.New(router.Handlers{
		Ticket: handler.NewTicketHandler(a.gw),
		Chat:   handler.NewChatHandler(assistant.NewChatter(ai.Client, sessions)),
		Report: handler.NewReportHandler(a.gw),
		Ready:  func(ctx context.Context) error { return database.Ping(ctx, a.db) },
	}, router.Options{
		APIPrefix:   cfg.APIPrefix,
		CORSOrigins: cfg.CORSOrigins,
	})
	a.httpSrv = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// стриминг чата и генерация отчёта длятся до таймаута LLM
		WriteTimeout: cfg.LLM.Timeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return nil
}

// Run запускает HTTP и gRPC серверы и фоновые задачи, блокируется до отмены ctx.
func (a *API) Run(ctx context.Context) error {
	host := a.cfg.AppHost
	if host == "0.0.0.0" {
		host = "localhost"
	}
	base := "http://" + host + ":" + a.cfg.HTTPPort
	slog.Info("HTTP server listening", "addr", a.httpSrv.Addr,
		"swagger", base+"/swagger",
		"api", base+a.cfg.APIPrefix,
		"metrics", base+"/metrics",
	)
	slog.Info("gRPC server listening (health, reflection)", "addr", a.lis.Addr().String())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := a.grpcSrv.Serve(a.lis); err != nil {
			return fmt.Errorf("grpc: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		a.refresher.Run(gctx)
		return nil
	})
	if mem, ok := a.sessions.(*session.MemoryStore); ok {
		g.Go(func() error {
			mem.Run(gctx, time.Minute)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return a.shutdown()
	})
	return g.Wait()
}

func (a *API) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := a.httpSrv.Shutdown(shutdownCtx)
	a.grpcSrv.Stop()
	a.gw.Wait()
	if cerr := a.producer.Close(); cerr != nil {
		slog.Warn("kafka close", "error", cerr)
	}
	a.closeSess()
	database.Close(a.db)
	slog.Info("shutdown complete")
	if err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
