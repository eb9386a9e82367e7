package identity

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// 期限切れエントリを掃除する間隔
const limiterSweepInterval = 5 * time.Minute

// emailLimiter はメールアドレスごとのリミッターと最終アクセス時刻を保持する。
type emailLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// signInLimiter はメールアドレスごとにサインイン試行回数を制限する。
type signInLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	limiters  map[string]*emailLimiter
	lastSweep time.Time
}

// newSignInLimiter は1分あたりperMinute回、最大burst回まで許可するリミッターを生成する。
// perMinuteが0以下の場合は制限しない。
func newSignInLimiter(perMinute, burst int) *signInLimiter {
	if perMinute <= 0 {
		return &signInLimiter{limit: rate.Inf, limiters: make(map[string]*emailLimiter)}
	}
	if burst <= 0 {
		burst = perMinute
	}
	return &signInLimiter{
		limit:    rate.Limit(float64(perMinute) / 60.0),
		burst:    burst,
		limiters: make(map[string]*emailLimiter),
	}
}

// Allow はnow時点でemailのサインイン試行を許可するかを返す。
func (l *signInLimiter) Allow(email string, now time.Time) bool {
	if l.limit == rate.Inf {
		return true
	}

	key := strings.ToLower(strings.TrimSpace(email))

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > limiterSweepInterval {
		l.sweep(now)
	}

	entry, ok := l.limiters[key]
	if !ok {
		entry = &emailLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = entry
	}
	entry.lastAccess = now
	return entry.limiter.AllowN(now, 1)
}

// sweep は一定時間アクセスのないエントリを削除する。呼び出し側でロックを保持すること。
func (l *signInLimiter) sweep(now time.Time) {
	for key, entry := range l.limiters {
		if now.Sub(entry.lastAccess) > limiterSweepInterval {
			delete(l.limiters, key)
		}
	}
	l.lastSweep = now
}
