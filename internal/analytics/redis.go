// Package analytics пишет дневные счётчики исполнения в Redis.
//
// Счётчики — вспомогательная статистика для дашборда: сколько job'ов
// за день завершилось каждым исходом и сколько было вызовов executor'а.
// Канал best-effort: недоступный Redis логируется и не влияет на
// исполнение. Nil-Sink безопасен — все методы при nil-receiver no-op,
// поэтому вызывающий код не обязан проверять, сконфигурирована ли
// аналитика.
package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hanowl-1/CRM-for-SMB-3q-sub001/internal/kst"
)

// retention — срок жизни дневных ключей. Дашборд смотрит максимум
// на месяц назад.
const retention = 35 * 24 * time.Hour

type Sink struct {
	client *redis.Client
	logger *slog.Logger
}

func NewSink(client *redis.Client, logger *slog.Logger) *Sink {
	return &Sink{client: client, logger: logger}
}

// NewSinkFromEnv создаёт Sink по REDIS_ADDR. Пустая переменная
// означает «аналитика выключена» и возвращает nil.
func NewSinkFromEnv(logger *slog.Logger) *Sink {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
	})
	return NewSink(client, logger)
}

// RecordOutcome инкрементирует дневной счётчик исхода
// (completed/failed/cancelled/retry). Дата берётся по KST — сутки
// бизнеса, а не UTC.
func (s *Sink) RecordOutcome(ctx context.Context, outcome string, at time.Time) {
	if s == nil {
		return
	}
	s.incr(ctx, fmt.Sprintf("crm:exec:%s:%s", dayBucket(at), outcome), 1)
}

// RecordInvocation инкрементирует счётчик вызовов executor'а и сумму
// выполненных job'ов за день.
func (s *Sink) RecordInvocation(ctx context.Context, executed int, at time.Time) {
	if s == nil {
		return
	}
	day := dayBucket(at)
	s.incr(ctx, fmt.Sprintf("crm:invocations:%s", day), 1)
	if executed > 0 {
		s.incr(ctx, fmt.Sprintf("crm:jobs:%s", day), int64(executed))
	}
}

func (s *Sink) incr(ctx context.Context, key string, delta int64) {
	pipe := s.client.Pipeline()
	pipe.IncrBy(ctx, key, delta)
	pipe.Expire(ctx, key, retention)

	if _, err := pipe.Exec(ctx); err != nil && s.logger != nil {
		s.logger.Warn("analytics write failed", "key", key, "error", err)
	}
}

// Close закрывает соединение с Redis. Безопасен при nil.
func (s *Sink) Close() error {
	if s == nil {
		return nil
	}
	return s.client.Close()
}

func dayBucket(t time.Time) string {
	return t.In(kst.Location).Format("2006-01-02")
}
