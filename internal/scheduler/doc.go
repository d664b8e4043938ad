// Package scheduler материализует jobs из повторяющихся расписаний.
//
// Scheduler периодически проверяет campaign_schedules с истекшим
// next_due_at и создаёт для них pending ScheduledJob. Дальше job живёт
// обычным циклом executor'а — scheduler ничего не выполняет сам.
//
// Структура:
//   - scheduler.go — основная логика (Tick, processSchedule)
//   - cron.go      — парсинг cron-выражений и вычисление следующего времени
//
// Идемпотентность: ключ "{schedule_id}_{next_due_at_unix}" гарантирует,
// что для одного расписания и конкретного времени будет создан только
// один job, даже если тик выполнится повторно.
//
// Leader Election:
//
// Scheduler не реализует leader election самостоятельно. Это делается
// в main.go через pg_try_advisory_lock; Tick() вызывается только лидером.
package scheduler
