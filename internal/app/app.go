package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/resumetrack/internal/activity"
	"github.com/hitoshi/resumetrack/internal/analytics"
	"github.com/hitoshi/resumetrack/internal/config"
	"github.com/hitoshi/resumetrack/internal/database"
	"github.com/hitoshi/resumetrack/internal/handler"
	"github.com/hitoshi/resumetrack/internal/logger"
	"github.com/hitoshi/resumetrack/internal/metrics"
	"github.com/hitoshi/resumetrack/internal/middleware"
	"github.com/hitoshi/resumetrack/internal/quota"
	"github.com/hitoshi/resumetrack/internal/repository"
	"github.com/hitoshi/resumetrack/internal/security"
	"github.com/hitoshi/resumetrack/internal/session"
	"github.com/hitoshi/resumetrack/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// .envと環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. .envと環境変数から設定を読み込む
	if err := config.LoadDotEnv(); err != nil {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再初期化
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.Bool("redis_enabled", cfg.RedisURL != ""),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg, IsMigrateDown(args))
	default:
		return runServe(cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")
	return db, nil
}

// openRedis はREDIS_URLが設定されている場合のみRedisクライアントを生成する。
// 起動時に疎通できない場合も、重複抑止は失敗時に記録を続行するため起動は継続する。
func openRedis(cfg *config.Config) (*redis.Client, error) {
	if cfg.RedisURL == "" {
		slog.Info("REDIS_URL is not set, activity deduplication is disabled")
		return nil, nil
	}

	client, err := database.OpenRedis(cfg.RedisURL)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := database.PingRedis(ctx, client); err != nil {
		slog.Warn("redis is not reachable at startup", slog.String("error", err.Error()))
	} else {
		slog.Info("redis connection established")
	}
	return client, nil
}

// services はAPIサーバーが使用するドメインサービスの集合。
type services struct {
	sessions   *session.Manager
	activities *activity.Recorder
	quota      *quota.Tracker
	analytics  *analytics.Aggregator
}

// newServices はリポジトリとドメインサービスを組み立てる。
// redisClientがnilの場合はアクティビティの重複抑止を行わない。
func newServices(db *sql.DB, redisClient *redis.Client, cfg *config.Config, m metrics.MetricsCollector) *services {
	userRepo := repository.NewPostgresUserRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	activityRepo := repository.NewPostgresActivityRepo(db)
	analyticsRepo := repository.NewPostgresAnalyticsRepo(database.NewSQLX(db))

	// nilの*RedisDeduplicatorをインターフェースに入れない
	var dedup activity.Deduplicator
	if redisClient != nil {
		dedup = activity.NewRedisDeduplicator(redisClient, cfg.ActivityDedupWindow)
	}

	sessions := session.NewManager(sessionRepo, activityRepo, m)
	return &services{
		sessions: sessions,
		activities: activity.NewRecorder(
			activityRepo, sessionRepo, sessions, dedup,
			security.NewContentSanitizer(security.DefaultMaxRunes), m,
		),
		quota:     quota.NewTracker(userRepo, m),
		analytics: analytics.NewAggregator(analyticsRepo, userRepo, cfg.AnalyticsMaxDays),
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB/Redis接続
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient, err := openRedis(cfg)
	if err != nil {
		return err
	}
	var redisPinger handler.Pinger
	if redisClient != nil {
		defer redisClient.Close()
		redisPinger = handler.PingFunc(func(ctx context.Context) error {
			return database.PingRedis(ctx, redisClient)
		})
	}

	// 2. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 3. ドメインサービスの初期化
	svc := newServices(db, redisClient, cfg, collector)

	// 4. ルーターの構築（RATE_LIMIT_GENERALはreq/min単位）
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfigPerMinute(cfg.RateLimitGeneral))
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Metrics:           collector,
		Gatherer:          registry,
		DB:                db,
		Redis:             redisPinger,
		Sessions:          svc.sessions,
		Activities:        svc.activities,
		Analytics:         svc.analytics,
		Quota:             svc.quota,
	})

	// 5. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-serveErr:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、放置セッションのクローズジョブを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	sessions := session.NewManager(
		repository.NewPostgresSessionRepo(db),
		repository.NewPostgresActivityRepo(db),
		nil,
	)
	job := cleanup.NewSweepJob(sessions, slog.Default(), cfg.SessionIdleTimeout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("worker starting",
		slog.Duration("sweep_interval", cfg.SweepInterval),
		slog.Duration("idle_timeout", cfg.SessionIdleTimeout),
	)

	// ジョブをメインgoroutineで実行（ブロッキング）
	job.Start(ctx, cfg.SweepInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// downがtrueの場合は最新のマイグレーションを1つ戻す。
func runMigrate(cfg *config.Config, down bool) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		slog.Bool("down", down),
	)

	if down {
		if err := database.RollbackMigration(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration rollback failed: %w", err)
		}
		slog.Info("database migration rolled back successfully")
		return nil
	}

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	return checkHealth(fmt.Sprintf("http://localhost:%s/health", port))
}

func checkHealth(url string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
