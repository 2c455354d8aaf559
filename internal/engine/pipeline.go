package engine

import "net/http"

// Stage — одна стадия HTTP-пайплайна, совместимая с chi Use.
type Stage = func(http.Handler) http.Handler

// Compose собирает стадии в одну. Первая стадия внешняя: запрос проходит
// их в порядке перечисления, отказ любой из них обрывает цепочку.
func Compose(stages ...Stage) Stage {
	return func(final http.Handler) http.Handler {
		h := final
		for i := len(stages) - 1; i >= 0; i-- {
			h = stages[i](h)
		}
		return h
	}
}
