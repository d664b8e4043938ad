// Package mq — интеграция с RabbitMQ для событий жизненного цикла job'ов.
//
// Поток событий:
//
//   - job.created  — scheduler материализовал новый job; executor-сервис
//     может проснуться раньше следующего poll-тика (fast-path, не замена
//     polling'а: при потере сообщения job всё равно будет подобран
//     очередным вызовом executor'а).
//   - job.finished — executor завершил job терминально или отправил его
//     на retry; потребители — нотификации и дашборд.
//
// Весь канал best-effort: RabbitMQ опционален, при пустом AMQP_URL
// сервисы работают в чистом polling-режиме.
package mq
