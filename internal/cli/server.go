package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"checkin-sync-service/internal/app"
	"checkin-sync-service/internal/config"
	"checkin-sync-service/internal/domain"
	"checkin-sync-service/internal/infra/memory"
	pginfra "checkin-sync-service/internal/infra/postgres"
	redisinfra "checkin-sync-service/internal/infra/redis"
	"checkin-sync-service/internal/realtime"
	transport "checkin-sync-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewServeCmd builds the CLI subcommand to start the server.
func NewServeCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the check-in sync server",
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
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)
	cacheTTL := config.TTLDuration(cfg.Cache.TTL, 10*time.Minute)
	rotationWindow := config.TTLDuration(cfg.Rotation.Window, app.DefaultRotationWindow)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	var store transport.AttendanceStore
	if pool != nil {
		store = pginfra.NewAttendanceRepository(pool)
	} else {
		store = memory.NewAttendanceStore()
	}
	if redisClient != nil {
		store = redisinfra.NewAttendanceCache(redisClient, store.(redisinfra.AttendanceBackend), cacheTTL)
	}

	var rosterLoader memory.RosterLoader = memory.NewStaticRosterLoader(sampleRosters())
	if pool != nil {
		rosterLoader = pginfra.NewRosterRepository(pool)
	}
	var roster transport.RosterRepository
	if redisClient != nil {
		roster = redisinfra.NewRosterRepository(redisClient, rosterLoader, cacheTTL)
	} else {
		roster = memory.NewRosterRepository(rosterLoader, cacheTTL)
	}

	var questionSource memory.QuestionSource = memory.NewStaticQuestionSource(sampleQuestions())
	if pool != nil {
		questionSource = pginfra.NewQuestionRepository(pool)
	}
	var bank transport.QuestionBank
	if redisClient != nil {
		bank = redisinfra.NewQuestionRepository(redisClient, questionSource, cacheTTL)
	} else {
		bank = memory.NewQuestionRepository(questionSource, cacheTTL)
	}

	hub := realtime.NewHub()
	if redisClient != nil {
		hub = realtime.NewHubWithMarker(redisinfra.NewRoomMarker(redisClient, redisTTL))
	}

	selector := app.NewSelector(rotationWindow)
	api := transport.NewAPI(store, bank, selector)
	api.WithRoster(roster)
	wsHandler := transport.NewWSHandler(hub)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	api.Register(mux)
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting check-in sync service on :%s", finalPort)
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

// sampleRosters provides a minimal roster for running without Postgres.
func sampleRosters() map[int64][]domain.Student {
	return map[int64][]domain.Student{
		1: {
			{ID: 1, ClassID: 1, Name: "Ada"},
			{ID: 2, ClassID: 1, Name: "Ben"},
			{ID: 3, ClassID: 1, Name: "Chloe"},
		},
	}
}

// sampleQuestions provides a minimal pool for running without Postgres.
func sampleQuestions() map[int64][]domain.Question {
	return map[int64][]domain.Question{
		1: {
			{
				ID:         1,
				Text:       "What is your favorite color?",
				Answers:    []string{"Red", "Blue", "Green"},
				Category:   "icebreaker",
				Difficulty: domain.DifficultyEasy,
				VisualType: "corners",
			},
			{
				ID:         2,
				Text:       "Cats or dogs?",
				Answers:    []string{"Cats", "Dogs"},
				Category:   "icebreaker",
				Difficulty: domain.DifficultyEasy,
				VisualType: "sides",
			},
		},
	}
}
