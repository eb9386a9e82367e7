package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/directorio/internal/client"
	"github.com/hitoshi/directorio/internal/config"
	"github.com/hitoshi/directorio/internal/database"
	"github.com/hitoshi/directorio/internal/handler"
	"github.com/hitoshi/directorio/internal/identity"
	"github.com/hitoshi/directorio/internal/logger"
	"github.com/hitoshi/directorio/internal/metrics"
	"github.com/hitoshi/directorio/internal/recordstore"
	"github.com/hitoshi/directorio/internal/repository"
	"github.com/hitoshi/directorio/internal/security"
	"github.com/hitoshi/directorio/internal/worker/repair"
	"github.com/hitoshi/directorio/internal/workflow"
)

const (
	connectTimeout  = 5 * time.Second
	shutdownTimeout = 30 * time.Second
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定したレベルでログを再設定する
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。SIGINTまたはSIGTERMを受信すると終了する。
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return runCommand(ctx, cfg, cmd)
}

// runCommand はctxがキャンセルされるまでcmdを実行する。
func runCommand(ctx context.Context, cfg *config.Config, cmd Command) error {
	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("record_store", cfg.RecordStore),
		slog.Bool("persistent_identity", cfg.DatabaseURL != ""),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// backend はidentity、セッション、プロフィール文書の保存先。
type backend struct {
	identities repository.IdentityRepository
	sessions   repository.SessionRepository
	records    recordstore.Store
	checkers   []handler.HealthChecker
	closers    []func() error
}

// openBackend は設定に従って保存先を開く。
// DATABASE_URLが空の場合、identityとセッションはプロセス内のメモリに保持する。
func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	b := &backend{}

	if cfg.DatabaseURL == "" {
		sessions := repository.NewMemorySessionRepo(time.Now)
		b.sessions = sessions
		b.identities = repository.NewMemoryIdentityRepo(sessions)
		slog.Warn("DATABASE_URL is not set; identities and sessions are kept in memory")
	} else {
		db, err := database.Connect(ctx, cfg.DatabaseURL, connectTimeout)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, db.Close)
		b.checkers = append(b.checkers, db)
		b.identities = repository.NewPostgresIdentityRepo(db)
		b.sessions = repository.NewPostgresSessionRepo(db)
		slog.Info("database connection established")

		if cfg.RecordStore == config.RecordStorePostgres {
			b.records = recordstore.NewPostgresStore(db)
		}
	}

	switch cfg.RecordStore {
	case config.RecordStoreRedis:
		rdb, err := recordstore.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.closers = append(b.closers, rdb.Close)
		b.checkers = append(b.checkers, handler.HealthCheckFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}))
		b.records = recordstore.NewRedisStore(rdb)
		slog.Info("redis connection established")
	case config.RecordStoreMemory:
		b.records = recordstore.NewMemoryStore()
	}

	if b.records == nil {
		b.Close()
		return nil, fmt.Errorf("record store %q is not available", cfg.RecordStore)
	}
	return b, nil
}

// Close は開いた接続を逆順に閉じる。
func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			slog.Error("failed to close backend", slog.String("error", err.Error()))
		}
	}
}

func newIdentityService(cfg *config.Config, b *backend) *identity.Service {
	return identity.NewService(b.identities, b.sessions, identity.Config{
		SessionSecret:       cfg.SessionSecret,
		ProjectID:           cfg.ProjectID,
		SessionMaxAge:       cfg.SessionMaxAge,
		RecentLoginWindow:   cfg.RecentLoginWindow,
		SignInRatePerMinute: cfg.SignInRatePerMin,
		SignInBurst:         cfg.SignInBurst,
	}, identity.WithHasher(identity.BcryptHasher{Cost: cfg.BcryptCost}))
}

func newRepairJob(cfg *config.Config, b *backend, svc *identity.Service, rec repair.Recorder) *repair.Job {
	job := repair.NewJob(b.identities, svc, b.records, rec, slog.Default())
	job.GracePeriod = cfg.OrphanGracePeriod
	return job
}

// runServe はAPIサーバーモードで起動する。
// 保存先を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	// 1. 保存先
	b, err := openBackend(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open backend: %w", err)
	}
	defer b.Close()

	// 2. Identity Serviceとメトリクス
	svc := newIdentityService(cfg, b)
	defer svc.Close()

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 3. クライアントコア
	core := client.New(client.Deps{
		Identity: svc,
		Services: workflow.Services{
			Records:   b.records,
			Sanitizer: security.NewTextSanitizer(),
			Metrics:   collector,
		},
		Transitions: collector,
	})
	defer core.Close()

	// 4. ルーターの構築
	router := handler.NewRouter(&handler.RouterDeps{
		Core:              core,
		Identity:          svc,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		HTTPMetrics:       collector,
		Logger:            slog.Default(),
		HealthCheckers:    b.checkers,
		MetricsHandler:    metrics.Handler(registry),
	})

	// 5. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutting down API server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	// メモリ上のidentityは別プロセスのworkerから見えないため、同じプロセスで修復する
	if cfg.DatabaseURL == "" {
		job := newRepairJob(cfg, b, svc, collector)
		g.Go(func() error {
			return job.Run(ctx, cfg.RepairInterval, cfg.SessionCleanupInterval)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 孤立したidentityの修復と期限切れセッションの削除を定期実行する。
// ctxがキャンセルされるとシャットダウンする。
func runWorker(ctx context.Context, cfg *config.Config) error {
	if cfg.DatabaseURL == "" {
		return errors.New("worker requires DATABASE_URL")
	}

	b, err := openBackend(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open backend: %w", err)
	}
	defer b.Close()

	svc := newIdentityService(cfg, b)
	defer svc.Close()

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)
	job := newRepairJob(cfg, b, svc, collector)

	g, ctx := errgroup.WithContext(ctx)

	if cfg.WorkerMetricsPort != "" {
		server := &http.Server{
			Addr:              ":" + cfg.WorkerMetricsPort,
			Handler:           metrics.SetupMetricsRoute(registry),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			slog.Info("worker metrics server starting", slog.String("addr", server.Addr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server listen error: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	slog.Info("worker starting",
		slog.Duration("repair_interval", cfg.RepairInterval),
		slog.Duration("session_cleanup_interval", cfg.SessionCleanupInterval),
		slog.Duration("orphan_grace_period", cfg.OrphanGracePeriod),
	)

	g.Go(func() error {
		return job.Run(ctx, cfg.RepairInterval, cfg.SessionCleanupInterval)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	if cfg.DatabaseURL == "" {
		return errors.New("migrate requires DATABASE_URL")
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

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
	url := fmt.Sprintf("http://localhost:%s/health", port)
	httpClient := &http.Client{Timeout: 5 * time.Second}

	resp, err := httpClient.Get(url)
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
