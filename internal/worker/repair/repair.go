// Package repair は登録の補償処理で取り残されたidentityを削除する修復ジョブを提供する。
// プロフィール文書のないidentityを猶予期間経過後に削除し、
// 期限切れのセッションも定期的に削除する。
package repair

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/directorio/internal/model"
	"github.com/hitoshi/directorio/internal/recordstore"
)

// IdentityLister は作成日時でidentityを列挙する。
type IdentityLister interface {
	ListCreatedBefore(ctx context.Context, cutoff time.Time, after string, limit int) ([]*model.Identity, error)
}

// AccountService は修復ジョブが使うIdentity Serviceの操作。
type AccountService interface {
	DeleteIdentity(ctx context.Context, identityID string) error
	PurgeExpiredSessions(ctx context.Context) (int64, error)
}

// Recorder は修復ジョブのメトリクス。
type Recorder interface {
	RecordRepairDeletions(count int)
	RecordExpiredSessionsDeleted(count int64)
}

// Job はidentityの修復とセッション削除のジョブ。
type Job struct {
	identities IdentityLister
	accounts   AccountService
	records    recordstore.Store
	metrics    Recorder
	logger     *slog.Logger
	now        func() time.Time

	GracePeriod time.Duration // 作成からこの期間が経過したidentityだけを対象にする（デフォルト: 1時間）
	PageSize    int           // 1回の列挙件数（デフォルト: 100）
}

// NewJob は新しいJobを生成する。metricsはnilでもよい。
func NewJob(identities IdentityLister, accounts AccountService, records recordstore.Store, metrics Recorder, logger *slog.Logger) *Job {
	return &Job{
		identities:  identities,
		accounts:    accounts,
		records:     records,
		metrics:     metrics,
		logger:      logger,
		now:         time.Now,
		GracePeriod: time.Hour,
		PageSize:    100,
	}
}

// RepairOnce はプロフィール文書のないidentityを削除し、削除件数を返す。
// 個別の失敗はログに記録して処理を続け、最後にまとめて返す。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *Job) RepairOnce(ctx context.Context) (int, error) {
	start := time.Now()
	cutoff := j.now().Add(-j.GracePeriod)

	var deleted, failed, scanned int
	after := ""
	for {
		page, err := j.identities.ListCreatedBefore(ctx, cutoff, after, j.PageSize)
		if err != nil {
			j.logger.Error("identityの列挙に失敗しました",
				slog.String("error", err.Error()),
			)
			return deleted, fmt.Errorf("identityの列挙に失敗: %w", err)
		}

		for _, identity := range page {
			scanned++
			orphan, err := j.isOrphan(ctx, identity.ID)
			if err != nil {
				failed++
				j.logger.Error("プロフィール文書の確認に失敗しました",
					slog.String("identity_id", identity.ID),
					slog.String("error", err.Error()),
				)
				continue
			}
			if !orphan {
				continue
			}

			if err := j.accounts.DeleteIdentity(ctx, identity.ID); err != nil {
				failed++
				j.logger.Error("孤立したidentityの削除に失敗しました",
					slog.String("identity_id", identity.ID),
					slog.String("error", err.Error()),
				)
				continue
			}
			deleted++
			j.logger.Info("孤立したidentityを削除しました",
				slog.String("identity_id", identity.ID),
				slog.String("email", identity.Email),
			)
		}

		if len(page) < j.PageSize {
			break
		}
		after = page[len(page)-1].ID
	}

	if j.metrics != nil && deleted > 0 {
		j.metrics.RecordRepairDeletions(deleted)
	}

	j.logger.Info("修復ジョブが完了しました",
		slog.Int("scanned_count", scanned),
		slog.Int("deleted_count", deleted),
		slog.Int("failed_count", failed),
		slog.Duration("grace_period", j.GracePeriod),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	if failed > 0 {
		return deleted, fmt.Errorf("%d件のidentityを修復できませんでした", failed)
	}
	return deleted, nil
}

func (j *Job) isOrphan(ctx context.Context, identityID string) (bool, error) {
	doc, err := j.records.Get(ctx, model.ProfileCollection, identityID)
	if err != nil {
		return false, err
	}
	return doc == nil, nil
}

// PurgeOnce は期限切れのセッションを削除し、削除件数を返す。
func (j *Job) PurgeOnce(ctx context.Context) (int64, error) {
	n, err := j.accounts.PurgeExpiredSessions(ctx)
	if err != nil {
		j.logger.Error("期限切れセッションの削除に失敗しました",
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("期限切れセッションの削除に失敗: %w", err)
	}

	if j.metrics != nil && n > 0 {
		j.metrics.RecordExpiredSessionsDeleted(n)
	}
	j.logger.Info("期限切れセッションを削除しました", slog.Int64("deleted_count", n))
	return n, nil
}

// Run は修復とセッション削除をそれぞれの間隔で実行する。
// ctxがキャンセルされるまで実行を継続し、キャンセル時はnilを返す。
func (j *Job) Run(ctx context.Context, repairInterval, purgeInterval time.Duration) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		j.loop(ctx, "repair", repairInterval, func(ctx context.Context) error {
			_, err := j.RepairOnce(ctx)
			return err
		})
		return nil
	})
	g.Go(func() error {
		j.loop(ctx, "session_purge", purgeInterval, func(ctx context.Context) error {
			_, err := j.PurgeOnce(ctx)
			return err
		})
		return nil
	})
	return g.Wait()
}

// loop は起動直後に1回、以後interval間隔でfnを実行する。
// fnの失敗はログに記録し、次の周期で再実行する。
func (j *Job) loop(ctx context.Context, name string, interval time.Duration, fn func(context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("ジョブを開始しました",
		slog.String("job", name),
		slog.Duration("interval", interval),
	)

	for {
		if err := fn(ctx); err != nil && ctx.Err() == nil {
			j.logger.Warn("ジョブの実行に失敗しました。次の周期で再実行します",
				slog.String("job", name),
				slog.String("error", err.Error()),
			)
		}

		select {
		case <-ctx.Done():
			j.logger.Info("ジョブを停止しました", slog.String("job", name))
			return
		case <-ticker.C:
		}
	}
}
