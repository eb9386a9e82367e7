package workflow

import (
	"context"
	"sync/atomic"

	"github.com/hitoshi/directorio/internal/form"
)

const workflowLogin = "login"

// Login はログイン画面の送信処理。
type Login struct {
	svc  Services
	busy atomic.Bool
}

// NewLogin はLoginを生成する。
func NewLogin(svc Services) *Login {
	return &Login{svc: svc}
}

// Submit はメールアドレスとシークレットでサインインする。
// 成功はidentityが確立したことだけを意味し、画面の切り替えはセッション通知による。
func (l *Login) Submit(ctx context.Context, st *form.State) Outcome {
	if !l.busy.CompareAndSwap(false, true) {
		return busy()
	}
	defer l.busy.Store(false)

	out, err := l.submit(ctx, st)
	l.svc.record(workflowLogin, out, err)
	return out
}

func (l *Login) submit(ctx context.Context, st *form.State) (Outcome, error) {
	if !st.Validate(form.LoginOptions) {
		return invalid(st.Errors), nil
	}

	if _, err := l.svc.Identity.SignIn(ctx, st.Fields[form.Email], st.Fields[form.Secret]); err != nil {
		return failed(loginAlert(err)), err
	}
	return Outcome{Kind: Success}, nil
}
