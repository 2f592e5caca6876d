package dispatch

// Outcome — результат выполнения handler'а.
//
// Двухуровневая сигнализация ошибок (контракт, а не баг):
//   - handler возвращает error      → инфраструктурный сбой, retry-путь
//   - handler возвращает SoftFailure → доменное "не смог" (сущность
//     отсутствует и т.п.), записывается как SUCCEEDED с описательным
//     результатом и НЕ ретраится
//
// Исключений из правила нет: только SoftFailure даёт
// "SUCCEEDED с примечанием", error всегда ведёт к retry/dead-letter.
type Outcome struct {
	// Doc — результат для записи в action.result.
	Doc map[string]any

	soft bool
}

// Success — успешный результат.
func Success(doc map[string]any) *Outcome {
	return &Outcome{Doc: doc}
}

// SoftFailure — доменный отказ без retry.
//
// Замечание для product review: сюда попадает и "сущность не найдена",
// что записывается как успех — поведение сохранено сознательно.
func SoftFailure(doc map[string]any) *Outcome {
	return &Outcome{Doc: doc, soft: true}
}

// IsSoftFailure возвращает true для доменного отказа.
func (o *Outcome) IsSoftFailure() bool {
	return o.soft
}
