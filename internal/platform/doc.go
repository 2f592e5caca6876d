// Package platform — клиент шлюза внешней площадки.
//
// Шлюз инкапсулирует API площадки (посты, Q&A, отзывы, позиции,
// OAuth) за простым REST-интерфейсом. Client реализует интерфейсы
// исполнителей из пакета dispatch и издателя из пакета pipeline,
// поэтому в тестах его место занимают fakes.
package platform
