// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — управление соединением (reconnect, confirm mode, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация сообщений (включая publisher confirms для инструкций)
//   - consumer.go   — потребление сообщений из очередей
//
// Типы сообщений:
//   - job.submitted — новый запрос на планирование ожидает обработки
//   - instruction   — одна инструкция маршрута для робота
//   - robot.ack     — подтверждение/завершение/отказ от робота
//
// Exchanges:
//   - fresco.jobs         — события jobs
//   - fresco.instructions — поток инструкций к роботу
//   - fresco.acks         — события от робота
//   - fresco.dlq          — dead letter queue
//
// Транспорт даёт at-least-once: сообщение может прийти повторно, поэтому
// каждая инструкция несёт idempotency token (job id + номер в
// последовательности), а потребители обязаны абсорбировать дубликаты.
package mq
