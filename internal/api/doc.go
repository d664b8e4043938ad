// Package api содержит HTTP-поверхность executor-сервиса.
//
// Структура:
//   - handler.go          — Handler с DI (executor, репозитории, logger)
//   - routes.go           — регистрация маршрутов
//   - middleware.go       — middleware (logging, recovery)
//   - auth.go             — авторизация триггера и классификация источника
//   - response.go         — JSON-конверт {success, data|message}
//   - dto.go              — представления ресурсов для ответов
//   - execute_handler.go  — POST|GET /api/scheduler/execute
//   - job_handler.go      — чтение и отмена jobs
//   - signal_handler.go   — чтение аудита вызовов
//   - schedule_handler.go — управление расписаниями кампаний
package api
