package analytics

import (
	"context"
	"testing"
	"time"
)

// Дневные бакеты считаются по корейскому календарному дню: полночь UTC
// ещё относится к тому же корейскому дню, что и утро KST.
func TestDayBucketUsesKoreanDay(t *testing.T) {
	cases := []struct {
		at   time.Time
		want string
	}{
		{time.Date(2025, 11, 10, 12, 0, 0, 0, time.UTC), "2025-11-10"},
		// 23:00 UTC = 08:00 KST следующего дня
		{time.Date(2025, 11, 10, 23, 0, 0, 0, time.UTC), "2025-11-11"},
		// 14:59 UTC = 23:59 KST того же дня
		{time.Date(2025, 11, 10, 14, 59, 0, 0, time.UTC), "2025-11-10"},
		{time.Date(2025, 11, 10, 15, 0, 0, 0, time.UTC), "2025-11-11"},
	}

	for _, tc := range cases {
		if got := dayBucket(tc.at); got != tc.want {
			t.Errorf("dayBucket(%s) = %q, want %q", tc.at, got, tc.want)
		}
	}
}

// Nil-sink — валидное выключенное состояние: все операции no-op.
func TestNilSinkIsSafe(t *testing.T) {
	var s *Sink
	ctx := context.Background()

	s.RecordOutcome(ctx, "completed", time.Now())
	s.RecordInvocation(ctx, 3, time.Now())
	if err := s.Close(); err != nil {
		t.Fatalf("Close on nil sink: %v", err)
	}
}
