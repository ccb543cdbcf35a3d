package integration

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"checkin-sync-service/internal/app"
	"checkin-sync-service/internal/domain"
	pgstore "checkin-sync-service/internal/infra/postgres"
	pgmigrations "checkin-sync-service/internal/infra/postgres/migrations"
	infraredis "checkin-sync-service/internal/infra/redis"
	"checkin-sync-service/internal/persist"
	"checkin-sync-service/internal/realtime"
	transporthttp "checkin-sync-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
)

func TestCheckInEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	migrateAndSeed(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	server := startServer(t, pool, redisClient)
	wsBase := "ws" + strings.TrimPrefix(server.URL, "http")

	const (
		classID = 1
		date    = "2026-03-02"
	)

	// Two live views of the same class day: a teacher picking answers and a
	// second screen that only watches.
	teacher := openSession(t, ctx, server.URL, wsBase, classID, date)
	defer teacher.Close()
	watcher := openSession(t, ctx, server.URL, wsBase, classID, date)
	defer watcher.Close()

	rec := teacher.Set(101, "Red")
	if rec.Answer != "Red" || rec.UpdatedAt.IsZero() {
		t.Fatalf("unexpected local record: %+v", rec)
	}

	waitFor(t, 5*time.Second, func() bool {
		entry, ok := watcher.Store().Snapshot().Assignments[101]
		return ok && entry.Answer == "Red"
	}, "watcher never saw the assignment")

	teacher.Flush()
	waitFor(t, 5*time.Second, func() bool {
		_, pending := teacher.Store().Snapshot().Pending[101]
		return !pending
	}, "persist confirmation never arrived")

	// The same student re-answering the same day must stay one storage row.
	teacher.Set(101, "Blue")
	teacher.Flush()

	attendance := pgstore.NewAttendanceRepository(pool)
	records, err := attendance.List(ctx, classID, date)
	if err != nil {
		t.Fatalf("list attendance: %v", err)
	}
	if len(records) != 1 || records[0].Answer != "Blue" {
		t.Fatalf("expected one row holding the latest answer, got %+v", records)
	}

	waitFor(t, 5*time.Second, func() bool {
		entry, ok := watcher.Store().Snapshot().Assignments[101]
		return ok && entry.Answer == "Blue"
	}, "watcher never converged on the latest answer")
}

func TestQuestionRotationEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	migrateAndSeed(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	server := startServer(t, pool, redisClient)

	seen := make(map[int64]bool)
	for i := 0; i < 2; i++ {
		q, exhausted := nextQuestion(t, server.URL, 5)
		if exhausted {
			t.Fatalf("pool of 2 must not exhaust in %d picks", i+1)
		}
		if seen[q.ID] {
			t.Fatalf("question %d repeated inside the rotation window", q.ID)
		}
		seen[q.ID] = true
	}
	if _, exhausted := nextQuestion(t, server.URL, 5); !exhausted {
		t.Fatalf("expected exhausted flag once every question is stamped")
	}

	// The stamps must be persisted, not only cached.
	questions, err := pgstore.NewQuestionRepository(pool).LoadPool(ctx, 5)
	if err != nil {
		t.Fatalf("load pool: %v", err)
	}
	for _, q := range questions {
		if q.LastUsedAt == nil {
			t.Fatalf("expected question %d stamped in storage", q.ID)
		}
	}
}

func startServer(t *testing.T, pool *pgxpool.Pool, redisClient *goredis.Client) *httptest.Server {
	t.Helper()

	store := infraredis.NewAttendanceCache(redisClient, pgstore.NewAttendanceRepository(pool), time.Minute)
	bank := infraredis.NewQuestionRepository(redisClient, pgstore.NewQuestionRepository(pool), time.Minute)
	roster := infraredis.NewRosterRepository(redisClient, pgstore.NewRosterRepository(pool), time.Minute)
	selector := app.NewSelectorWithClock(app.DefaultRotationWindow, time.Now, rand.New(rand.NewSource(42)))

	api := transporthttp.NewAPI(store, bank, selector).WithRoster(roster)
	hub := realtime.NewHubWithMarker(infraredis.NewRoomMarker(redisClient, time.Minute))
	wsHandler := transporthttp.NewWSHandler(hub)

	mux := http.NewServeMux()
	api.Register(mux)
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func openSession(t *testing.T, ctx context.Context, apiURL, wsBase string, classID int64, date string) *app.Session {
	t.Helper()
	store := app.NewStore(classID, date, 1)
	channel := realtime.NewWSChannel(wsBase, classID, date)
	session := app.NewSession(store, persist.New(apiURL), channel, nil)
	if err := session.Open(ctx); err != nil {
		t.Fatalf("open session: %v", err)
	}
	return session
}

func nextQuestion(t *testing.T, apiURL string, teacherID int64) (domain.Question, bool) {
	t.Helper()
	body, _ := json.Marshal(map[string]any{"teacherId": teacherID})
	resp, err := http.Post(apiURL+"/questions/next", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("next question: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("next question: status %d", resp.StatusCode)
	}
	var out struct {
		Question  domain.Question `json:"question"`
		Exhausted bool            `json:"exhausted"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode question: %v", err)
	}
	return out.Question, out.Exhausted
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("%s", msg)
}

func migrateAndSeed(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	if _, err := db.ExecContext(ctx, `
		INSERT INTO students (id, class_id, name) VALUES (101, 1, 'Ada'), (102, 1, 'Ben')`); err != nil {
		t.Fatalf("seed students: %v", err)
	}
	if _, err := db.ExecContext(ctx, `
		INSERT INTO questions (id, teacher_id, text, answers, category) VALUES
		(1, 5, 'Favorite color?', '["Red","Blue"]'::jsonb, 'icebreaker'),
		(2, 5, 'Cats or dogs?', '["Cats","Dogs"]'::jsonb, 'icebreaker')`); err != nil {
		t.Fatalf("seed questions: %v", err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "checkin", "POSTGRES_PASSWORD": "checkinpass", "POSTGRES_DB": "checkindb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://checkin:checkinpass@%s:%s/checkindb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
