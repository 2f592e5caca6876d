// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — управление соединением (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация сообщений
//   - consumer.go   — потребление action.due nudges воркером
//
// Типы сообщений:
//   - action.due       — action готов к lease (nudge для воркеров)
//   - action.completed — action достиг терминального статуса
//
// События — только ускорение: источником истины остаётся таблица
// actions, воркеры в любом случае подбирают due-строки через polling.
package mq
