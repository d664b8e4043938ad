// Package kst нормализует разнородные строковые таймстемпы к единому
// физическому моменту времени.
//
// Хранилище накопило строки, записанные по двум историческим
// конвенциям: новые строки пишутся с явным offset'ом (+09:00),
// легаси-строки — без маркера зоны, причём часть из них в UTC,
// часть в корейском локальном времени. Resolve применяет
// документированную эвристику согласования; это прагматичный шим
// для легаси-строк, а не чистый контракт.
package kst

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Zone — референсная локальная зона системы.
const Zone = "Asia/Seoul"

// Location — загруженная референсная зона (+09:00, без DST).
var Location *time.Location

func init() {
	loc, err := time.LoadLocation(Zone)
	if err != nil {
		// tzdata может отсутствовать в минимальных контейнерах
		loc = time.FixedZone("KST", 9*60*60)
	}
	Location = loc
}

// Окна эвристики для строк без маркера зоны.
const (
	// recentWindow — job младше этого окна считается записанным
	// по новой конвенции (локальное время).
	recentWindow = 24 * time.Hour

	// ambiguityWindow — максимальное отклонение от now, при котором
	// интерпретация считается правдоподобной.
	ambiguityWindow = 24 * time.Hour
)

// ErrEmptyTimestamp — пустая строка времени.
var ErrEmptyTimestamp = errors.New("empty timestamp")

// Форматы без маркера зоны (легаси-строки).
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// Now возвращает текущее время в референсной зоне.
func Now() time.Time {
	return time.Now().In(Location)
}

// Format сериализует момент в каноническом формате записи
// (RFC3339 с явным +09:00). Все новые строки пишутся только так.
func Format(t time.Time) string {
	return t.In(Location).Format(time.RFC3339)
}

// Resolve возвращает физический момент, который представляет строка.
//
// Политика, в порядке приоритета:
//  1. Явный offset (+09:00 и любой другой) — доверяем offset'у.
//  2. Маркер UTC (Z) — парсим как UTC.
//  3. Маркера нет (легаси): job младше 24h — строка в локальной зоне;
//     иначе берём ту из двух интерпретаций (UTC/локальная), что ближе
//     к now, если отклонение меньше 24h; иначе локальная.
func Resolve(raw string, createdAt, now time.Time) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, ErrEmptyTimestamp
	}

	// Хранилище встречается и с "2006-01-02 15:04:05"
	s = strings.Replace(s, " ", "T", 1)

	if hasZoneMarker(s) {
		t, err := parseAbsolute(s)
		if err != nil {
			return time.Time{}, err
		}
		return t, nil
	}

	return resolveNaive(s, createdAt, now)
}

// hasZoneMarker проверяет наличие явного offset'а или маркера UTC
// во временной части строки.
func hasZoneMarker(s string) bool {
	if strings.HasSuffix(s, "Z") || strings.HasSuffix(s, "z") {
		return true
	}
	// Ищем +hh:mm / -hh:mm после 'T', чтобы не спутать с датой
	idx := strings.IndexByte(s, 'T')
	if idx < 0 {
		return false
	}
	rest := s[idx+1:]
	return strings.ContainsAny(rest, "+-")
}

// parseAbsolute парсит строку с явным маркером зоны.
func parseAbsolute(s string) (time.Time, error) {
	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04:05.999999999Z07:00",
		"2006-01-02T15:04:05Z0700",
		"2006-01-02T15:04Z07:00",
	}
	var firstErr error
	for _, layout := range layouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, firstErr)
}

// resolveNaive применяет эвристику к строке без маркера зоны.
func resolveNaive(s string, createdAt, now time.Time) (time.Time, error) {
	asLocal, errLocal := parseNaive(s, Location)
	asUTC, errUTC := parseNaive(s, time.UTC)
	if errLocal != nil {
		return time.Time{}, errLocal
	}
	if errUTC != nil {
		return time.Time{}, errUTC
	}

	// Свежая запись — новая конвенция, локальное время
	if !createdAt.IsZero() && now.Sub(createdAt) < recentWindow {
		return asLocal, nil
	}

	dLocal := absDuration(now.Sub(asLocal))
	dUTC := absDuration(now.Sub(asUTC))

	if dUTC < dLocal && dUTC < ambiguityWindow {
		return asUTC, nil
	}
	if dLocal <= dUTC && dLocal < ambiguityWindow {
		return asLocal, nil
	}

	// Ни одна интерпретация не правдоподобна — локальная по умолчанию
	return asLocal, nil
}

// parseNaive парсит строку без зоны в заданной location.
func parseNaive(s string, loc *time.Location) (time.Time, error) {
	var firstErr error
	for _, layout := range naiveLayouts {
		t, err := time.ParseInLocation(layout, s, loc)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, fmt.Errorf("parse naive timestamp %q: %w", s, firstErr)
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
