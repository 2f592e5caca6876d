// Package dispatch маршрутизирует actions по типу к исполнителям.
//
// Каждый тип action исполняется своим Handler'ом; связка тип→handler
// задаётся в Registry при старте процесса. Для типов без исполнителя
// действует no-op handler: action завершается успешно с пометкой.
//
// Контракт handler'а двухуровневый:
//   - возврат error — инфраструктурный сбой, Scheduler уводит action
//     в retry с backoff (и в DEAD_LETTERED после max_attempts);
//   - возврат SoftFailure — доменный отказ («сущность не найдена»,
//     «уже опубликовано»), который записывается как SUCCEEDED
//     с описательным результатом и не ретраится.
//
// Handlers намеренно тонкие: они распаковывают payload, дёргают
// сервис (pipeline, rule evaluator, клиент площадки) и сворачивают
// результат в Outcome.
package dispatch
