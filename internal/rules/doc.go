// Package rules — оценка правил автоматизации (Rule Evaluator).
//
// Tenant настраивает правила-триггеры (cron, ежедневные, событийные),
// каждое из которых при срабатывании хочет создать action. Правила
// одного scope (конкретная локация или весь tenant) конкурируют между
// собой: из сработавших выбирается ровно один победитель на scope
// по (priority, weight) по убыванию, при полном равенстве — более
// раннее created_at. Победитель получает action с per-day
// dedupe-ключом, поэтому сколько бы раз оценка ни запускалась за день,
// дублей не возникает.
//
// Сама оценка запускается периодически action'ом run_automation_rules,
// который планирует процесс vitrina-scheduler.
package rules
