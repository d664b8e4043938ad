package kst

import (
	"testing"
	"time"
)

func TestResolve_ExplicitKSTOffset(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	got, err := Resolve("2024-05-01T21:00:00+09:00", now, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 21:00 KST == 12:00 UTC
	want := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestResolve_ExplicitUTCMarker(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	got, err := Resolve("2024-05-01T12:00:00Z", now, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(now) {
		t.Errorf("expected %v, got %v", now, got)
	}
}

func TestResolve_SpaceSeparatedLayout(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	createdAt := now.Add(-time.Hour)

	got, err := Resolve("2024-05-01 21:00:00", createdAt, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := time.Date(2024, 5, 1, 21, 0, 0, 0, Location)
	if !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestResolve_RecentJobNaiveIsLocal(t *testing.T) {
	// Job создан час назад — строка без зоны читается как KST
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	createdAt := now.Add(-time.Hour)

	got, err := Resolve("2024-05-01T21:00:00", createdAt, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := time.Date(2024, 5, 1, 21, 0, 0, 0, Location)
	if !got.Equal(want) {
		t.Errorf("expected local interpretation %v, got %v", want, got)
	}
}

func TestResolve_LegacyJobPicksCloserInterpretation(t *testing.T) {
	// Job создан 3 дня назад. Строка "2024-05-01T11:30:00":
	// как UTC это 30 минут от now, как KST — 9.5 часов.
	// Должна победить UTC-интерпретация.
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	createdAt := now.Add(-72 * time.Hour)

	got, err := Resolve("2024-05-01T11:30:00", createdAt, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := time.Date(2024, 5, 1, 11, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("expected UTC interpretation %v, got %v", want, got)
	}
}

func TestResolve_LegacyJobCloserLocalWins(t *testing.T) {
	// Как KST строка в 30 минутах от now, как UTC — в 9.5 часах.
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	createdAt := now.Add(-72 * time.Hour)

	got, err := Resolve("2024-05-01T21:30:00", createdAt, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := time.Date(2024, 5, 1, 21, 30, 0, 0, Location)
	if !got.Equal(want) {
		t.Errorf("expected local interpretation %v, got %v", want, got)
	}
}

func TestResolve_LegacyJobNeitherPlausibleDefaultsLocal(t *testing.T) {
	// Обе интерпретации дальше 24h от now — локальная по умолчанию
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	createdAt := now.Add(-30 * 24 * time.Hour)

	got, err := Resolve("2024-05-01T09:00:00", createdAt, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := time.Date(2024, 5, 1, 9, 0, 0, 0, Location)
	if !got.Equal(want) {
		t.Errorf("expected local default %v, got %v", want, got)
	}
}

func TestResolve_Empty(t *testing.T) {
	_, err := Resolve("   ", time.Now(), time.Now())
	if err == nil {
		t.Fatal("expected error for empty timestamp")
	}
}

func TestResolve_Garbage(t *testing.T) {
	_, err := Resolve("not-a-timestamp", time.Now(), time.Now())
	if err == nil {
		t.Fatal("expected error for garbage input")
	}
}

func TestFormat_CanonicalWriteFormat(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	got := Format(ts)
	if got != "2024-05-01T21:00:00+09:00" {
		t.Errorf("expected canonical +09:00 format, got %q", got)
	}

	// Канонический формат должен разрешаться обратно в тот же момент
	back, err := Resolve(got, ts, ts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !back.Equal(ts) {
		t.Errorf("roundtrip mismatch: %v != %v", back, ts)
	}
}
