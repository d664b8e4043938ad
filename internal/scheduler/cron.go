package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hanowl-1/CRM-for-SMB-3q-sub001/internal/domain"
	"github.com/hanowl-1/CRM-for-SMB-3q-sub001/internal/kst"
)

// cronParser — стандартный пятипольный формат (без секунд).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// CalculateNextDue вычисляет следующее время материализации.
//
// Cron-выражения интерпретируются в timezone расписания; пустой или
// невалидный timezone означает корейское время — расписания кампаний
// пишутся в KST.
func CalculateNextDue(sched *domain.CampaignSchedule, from time.Time) (time.Time, error) {
	loc := kst.Location
	if sched.Timezone != "" {
		if l, err := time.LoadLocation(sched.Timezone); err == nil {
			loc = l
		}
	}

	fromInTz := from.In(loc)

	if sched.IsCron() {
		return calculateNextCron(sched.CronExpr, fromInTz)
	}

	if sched.IsInterval() {
		return fromInTz.Add(time.Duration(sched.IntervalSec) * time.Second).UTC(), nil
	}

	return time.Time{}, fmt.Errorf("schedule has neither cron_expr nor interval_sec")
}

func calculateNextCron(cronExpr string, from time.Time) (time.Time, error) {
	schedule, err := cronParser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}

	// UTC для хранения в БД
	return schedule.Next(from).UTC(), nil
}

// ValidateCronExpr проверяет валидность cron-выражения.
// Используется API при создании расписания.
func ValidateCronExpr(cronExpr string) error {
	if _, err := cronParser.Parse(cronExpr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}
	return nil
}

// CalculateInitialNextDue вычисляет первое время материализации для
// нового расписания.
func CalculateInitialNextDue(sched *domain.CampaignSchedule, now time.Time) (time.Time, error) {
	return CalculateNextDue(sched, now)
}
