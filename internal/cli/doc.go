// Package cli реализует командную утилиту crm-cli.
//
// CLI — клиент HTTP API executor-сервиса; внутренние пакеты системы
// (repo, executor) он не импортирует. Используется операторами для
// инспекции jobs и аудита вызовов, отмены ожидающих jobs, управления
// расписаниями кампаний и ручного запуска executor'а.
//
// Компоненты:
//
//   - Client — HTTP-клиент: разбор конверта {success, data|message},
//     авторизация через x-cron-secret.
//   - Output — форматирование: таблицы (text/tabwriter) по умолчанию,
//     JSON с флагом --json. Данные в stdout, сообщения в stderr.
//   - Команды cobra по ресурсам: job, signal, schedule, execute.
//     Каждая группа создаётся фабрикой (NewJobCmd и т.д.), принимающей
//     clientFn и outputFn — замыкания для ленивого создания Client и
//     Output после парсинга PersistentFlags.
package cli
