// Package workflow は登録、ログイン、ホーム、プロフィール編集の各画面の処理を提供する。
//
// バックエンド呼び出しの失敗はすべてこのパッケージの境界で捕捉し、
// 画面に表示するOutcomeへ変換する。
package workflow

import (
	"context"
	"log/slog"
	"maps"
	"time"

	"github.com/hitoshi/directorio/internal/form"
	"github.com/hitoshi/directorio/internal/model"
	"github.com/hitoshi/directorio/internal/recordstore"
)

// Kind は処理結果の種別。
type Kind string

// 処理結果の種別
const (
	Success        Kind = "success"
	Invalid        Kind = "invalid"         // 入力エラー。バックエンドは呼ばない
	Failed         Kind = "failed"          // 何も変更されていない失敗
	PartialSuccess Kind = "partial_success" // プロフィールは更新されたがシークレット変更に失敗
	Busy           Kind = "busy"            // 同じ画面で送信処理が実行中
)

// Alert は画面上部に表示する通知。
type Alert struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// Outcome は画面に返す処理結果。
type Outcome struct {
	Kind         Kind
	Errors       form.Errors          // Invalidの場合のフィールドエラー
	Alert        *Alert               // 入力エラーの場合はnil
	NavigateBack bool                 // 前の画面に戻るべきか
	Stale        bool                 // 開始した画面が既に表示されていない
	Record       *model.ProfileRecord // 読み込みまたは書き込んだプロフィール
}

// IdentityService はworkflowが利用するIdentity Serviceの操作。
type IdentityService interface {
	SignUp(ctx context.Context, email, secret string) (*model.Identity, error)
	SignIn(ctx context.Context, email, secret string) (*model.Identity, error)
	SignOut(ctx context.Context) error
	CurrentIdentity() *model.Identity
	Reauthenticate(ctx context.Context, identityID, currentSecret string) error
	ChangeSecret(ctx context.Context, identityID, newSecret string) error
	DeleteIdentity(ctx context.Context, identityID string) error
}

// Sanitizer は自由入力のテキストからマークアップを除去する。
type Sanitizer interface {
	SanitizeText(s string) string
}

// Recorder は処理結果を記録するメトリクス。
type Recorder interface {
	RecordWorkflowOutcome(workflow, outcome string)
	RecordIdentityError(kind string)
}

// Services は起動時に一度だけ構築して各画面の処理に渡すサービス群。
type Services struct {
	Identity  IdentityService
	Records   recordstore.Store
	Sanitizer Sanitizer        // nilの場合は除去しない
	Metrics   Recorder         // nilの場合は記録しない
	Now       func() time.Time // nilの場合はtime.Now
}

func (s Services) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func (s Services) sanitize(v string) string {
	if s.Sanitizer == nil {
		return v
	}
	return s.Sanitizer.SanitizeText(v)
}

// sanitizeFields は自由入力のフィールドからマークアップを除去する。
func (s Services) sanitizeFields(st *form.State, fields ...string) {
	for _, f := range fields {
		if v, ok := st.Fields[f]; ok {
			st.Fields[f] = s.sanitize(v)
		}
	}
}

// record はOutcomeをメトリクスとログに記録する。
func (s Services) record(workflow string, out Outcome, err error) {
	if s.Metrics != nil {
		s.Metrics.RecordWorkflowOutcome(workflow, string(out.Kind))
		if kind, ok := model.IdentityErrorKindOf(err); ok {
			s.Metrics.RecordIdentityError(string(kind))
		}
	}

	switch {
	case err != nil && out.Kind == PartialSuccess:
		slog.Warn("workflow partially succeeded",
			slog.String("workflow", workflow),
			slog.String("error", err.Error()),
		)
	case err != nil:
		if _, ok := model.IdentityErrorKindOf(err); ok {
			slog.Info("workflow rejected by identity service",
				slog.String("workflow", workflow),
				slog.String("error", err.Error()),
			)
		} else {
			slog.Error("workflow failed",
				slog.String("workflow", workflow),
				slog.String("error", err.Error()),
			)
		}
	case out.Kind == Success:
		slog.Info("workflow succeeded", slog.String("workflow", workflow))
	}
}

func invalid(errs form.Errors) Outcome {
	return Outcome{Kind: Invalid, Errors: maps.Clone(errs)}
}

func busy() Outcome {
	return Outcome{Kind: Busy}
}

func failed(alert Alert) Outcome {
	return Outcome{Kind: Failed, Alert: &alert}
}
