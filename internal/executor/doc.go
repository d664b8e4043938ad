// Package executor реализует машину состояний выполнения scheduled jobs.
//
// Executor — stateless обработчик: внешний триггер (cron-вызов,
// ручной запуск или долгоживущий poller) вызывает Execute, и один
// вызов проходит фазы:
//
//  1. Signal   — аудит-запись вызова (cron_signals)
//  2. Repair   — починка зависших running jobs (reconciler.go)
//  3. Select   — выборка due jobs с окном допуска (selector.go)
//  4. Claim    — атомарный захват кандидатов через CAS (executor.go)
//  5. Run      — последовательное выполнение захваченных jobs (runner.go)
//
// Корректность при конкурентных вызовах держится исключительно на
// условных обновлениях job store: триггер может сработать ноль, один
// или несколько раз за логический тик, в том числе из независимых
// процессов без общей памяти. Захваченным считается только то, что
// вернул условный bulk-update, а не исходный набор кандидатов.
//
// Ошибки одного job никогда не прерывают обработку остальных; весь
// вызов падает только если сама выборка due jobs не удалась до начала
// пообъектной обработки.
package executor
