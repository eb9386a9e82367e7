// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, navigation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidRequest       = "INVALID_REQUEST"
	ErrCodeScreenNotReachable   = "SCREEN_NOT_REACHABLE"
	ErrCodeNavigationNotReady   = "NAVIGATION_NOT_READY"
	ErrCodeNotAuthenticated     = "NOT_AUTHENTICATED"
	ErrCodeNoPreviousScreen     = "NO_PREVIOUS_SCREEN"
	ErrCodeInternal             = "INTERNAL_ERROR"
	ErrCodeSubmissionInProgress = "SUBMISSION_IN_PROGRESS"
)

// NewInvalidRequestError はリクエスト形式が不正な場合のエラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "リクエストの形式を確認してください。",
	}
}

// NewScreenNotReachableError は現在の画面セットから到達できない画面を操作した場合のエラーを生成する。
func NewScreenNotReachableError(screen string) *APIError {
	return &APIError{
		Code:     ErrCodeScreenNotReachable,
		Message:  fmt.Sprintf("画面 %q は現在表示できません。", screen),
		Category: "navigation",
		Action:   "ナビゲーション状態を再取得してください。",
	}
}

// NewNavigationNotReadyError はセッション状態の初回通知前に操作した場合のエラーを生成する。
func NewNavigationNotReadyError() *APIError {
	return &APIError{
		Code:     ErrCodeNavigationNotReady,
		Message:  "セッション状態を読み込み中です。",
		Category: "navigation",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewNoPreviousScreenError はルート画面で戻る操作をした場合のエラーを生成する。
func NewNoPreviousScreenError() *APIError {
	return &APIError{
		Code:     ErrCodeNoPreviousScreen,
		Message:  "前の画面がありません。",
		Category: "navigation",
		Action:   "ナビゲーション状態を再取得してください。",
	}
}

// NewInternalError は予期しないエラーの場合のエラーを生成する。
// 詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewNotAuthenticatedError は認証が必要な操作を未認証で実行した場合のエラーを生成する。
func NewNotAuthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeNotAuthenticated,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewSubmissionInProgressError は同じ画面で送信処理が実行中の場合のエラーを生成する。
func NewSubmissionInProgressError() *APIError {
	return &APIError{
		Code:     ErrCodeSubmissionInProgress,
		Message:  "送信処理を実行中です。",
		Category: "validation",
		Action:   "処理の完了を待ってください。",
	}
}

// IdentityErrorKind はIdentity Serviceが報告するエラー種別。
// 値はクライアントSDKのエラーコード体系に合わせる。
type IdentityErrorKind string

// 定義済みのIdentityエラー種別
const (
	KindInvalidEmail        IdentityErrorKind = "auth/invalid-email"
	KindEmailAlreadyInUse   IdentityErrorKind = "auth/email-already-in-use"
	KindWeakPassword        IdentityErrorKind = "auth/weak-password"
	KindUserNotFound        IdentityErrorKind = "auth/user-not-found"
	KindWrongPassword       IdentityErrorKind = "auth/wrong-password"
	KindUserDisabled        IdentityErrorKind = "auth/user-disabled"
	KindTooManyRequests     IdentityErrorKind = "auth/too-many-requests"
	KindRequiresRecentLogin IdentityErrorKind = "auth/requires-recent-login"
	KindNoCurrentUser       IdentityErrorKind = "auth/no-current-user"
)

// IdentityError はIdentity Serviceの失敗を表す。
// Kindで分岐し、Messageはログ用の詳細とする。
type IdentityError struct {
	Kind    IdentityErrorKind
	Message string
}

// Error はerrorインターフェースを実装する。
func (e *IdentityError) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewIdentityError はIdentityErrorを生成する。
func NewIdentityError(kind IdentityErrorKind, message string) *IdentityError {
	return &IdentityError{Kind: kind, Message: message}
}

// IdentityErrorKindOf はエラーチェーンからIdentityエラー種別を取り出す。
func IdentityErrorKindOf(err error) (IdentityErrorKind, bool) {
	var idErr *IdentityError
	if errors.As(err, &idErr) {
		return idErr.Kind, true
	}
	return "", false
}
