// Package api — HTTP API для управления actions, jobs и правилами.
//
// Маршруты построены на method patterns стандартного http.ServeMux.
// Все ответы завёрнуты в единый конверт: {"data": ...} для успеха,
// {"error": {"code", "message"}} для ошибок. Доменные ошибки
// транслируются в коды централизованно функцией HandleError.
//
// Мутации actions идут только через Scheduler; репозитории
// используются напрямую лишь для чтения.
package api
