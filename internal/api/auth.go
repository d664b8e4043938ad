package api

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/hanowl-1/CRM-for-SMB-3q-sub001/internal/domain"
)

type contextKey string

// sourceKey — ключ контекста с классификацией источника вызова.
const sourceKey contextKey = "signal-source"

// Authorize проверяет право вызывать триггер и классифицирует источник:
//
//   - x-internal-call: true       → scheduler (доверенный внешний cron)
//   - x-cron-secret == CRON_SECRET → manual (ручной вызов оператора)
//   - APP_ENV=development          → development (без авторизации)
//
// Остальные запросы получают 401 в стандартном конверте.
func Authorize(secret, appEnv string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			source, ok := classify(r, secret, appEnv)
			if !ok {
				Unauthorized(w)
				return
			}

			ctx := context.WithValue(r.Context(), sourceKey, source)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func classify(r *http.Request, secret, appEnv string) (domain.SignalSource, bool) {
	if r.Header.Get("x-internal-call") == "true" {
		return domain.SignalSourceScheduler, true
	}

	if got := r.Header.Get("x-cron-secret"); secret != "" && got != "" {
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) == 1 {
			return domain.SignalSourceManual, true
		}
		return "", false
	}

	if appEnv == "development" {
		return domain.SignalSourceDevelopment, true
	}

	return "", false
}

// SourceFromContext возвращает классификацию источника, проставленную
// Authorize. Default — manual, если middleware не отработал.
func SourceFromContext(ctx context.Context) domain.SignalSource {
	if s, ok := ctx.Value(sourceKey).(domain.SignalSource); ok {
		return s
	}
	return domain.SignalSourceManual
}
