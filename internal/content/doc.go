// Package content — планирование контента для локаций.
//
// Planner раскладывает публикации по дням недели и ротирует
// тематические категории (buckets) так, чтобы одна категория не
// повторялась внутри cooldown-окна. Из планов pipeline создаёт
// publishing jobs.
package content
