package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/config"
	"quiz-session-service/internal/infra/memory"
	"quiz-session-service/internal/infra/postgres"
	redisinfra "quiz-session-service/internal/infra/redis"
	transport "quiz-session-service/internal/transport/http"
)

// NewServeCmd builds the CLI subcommand to start the server.
func NewServeCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the quiz session server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	// Durable stores: Postgres when configured, in-memory otherwise.
	var (
		sessionStore    app.SessionStore
		submissionStore app.SubmissionStore
		boardStore      app.LeaderboardStore
		questionSource  app.QuestionSource
	)
	if cfg.Postgres.URL != "" {
		db := postgres.NewDB(cfg.Postgres.URL)
		defer db.Close()

		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()

		sessionStore = postgres.NewSessionStore(db)
		submissionStore = postgres.NewSubmissionStore(db)
		boardStore = postgres.NewLeaderboardStore(db)
		questionSource = postgres.NewQuestionSource(pool)
	} else {
		memSessions := memory.NewSessionStore()
		sessionStore = memSessions
		submissionStore = memory.NewSubmissionStore()
		boardStore = memory.NewLeaderboardStore()
		questionSource = memSessions
	}

	// Answer keys sit behind an expiring cache on the submission hot path.
	cacheTTL := config.Duration(cfg.Session.QuestionCacheTTL, 10*time.Minute)
	if redisClient != nil {
		questionSource = redisinfra.NewAnswerKeyCache(redisClient, questionSource, cacheTTL)
	} else {
		questionSource = memory.NewQuestionCache(questionSource, cacheTTL)
	}

	// Event fan-out: Redis pub/sub across instances, in-process otherwise.
	var (
		broadcaster app.Broadcaster
		subscriber  app.Subscriber
	)
	if redisClient != nil {
		b := redisinfra.NewBroadcaster(redisClient)
		broadcaster, subscriber = b, b
	} else {
		b := memory.NewBroadcaster()
		broadcaster, subscriber = b, b
	}

	publishTimeout := config.Duration(cfg.Broadcast.PublishTimeout, app.DefaultPublishTimeout)
	codes := app.NewJoinCodeGenerator(cfg.Session.JoinCodeLength)

	boardService := app.NewLeaderboardService(sessionStore, submissionStore, boardStore)
	sessionService := app.NewSessionService(sessionStore, submissionStore, boardStore, broadcaster, codes)
	sessionService.SetPublishTimeout(publishTimeout)
	submissionService := app.NewSubmissionService(sessionStore, questionSource, submissionStore, boardService, broadcaster)
	submissionService.SetPublishTimeout(publishTimeout)

	handler := transport.NewHandler(sessionService, submissionService, boardService)
	wsHandler := transport.NewWSHandler(sessionService, subscriber)
	router := transport.NewRouter(handler, wsHandler)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting quiz session service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
