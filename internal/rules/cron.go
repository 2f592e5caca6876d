package rules

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/vitrina-io/vitrina/internal/domain"
)

// cronParser — парсер cron-выражений (5 полей, без секунд).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateCronExpr проверяет валидность cron-выражения.
func ValidateCronExpr(expr string) error {
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// nextCron вычисляет следующее срабатывание cron-выражения после from.
func nextCron(expr string, from time.Time) (time.Time, error) {
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", expr, err)
	}
	return schedule.Next(from).UTC(), nil
}

// ruleDue проверяет, должно ли правило сработать к моменту now.
//
//   - cron: следующее срабатывание после last_fired_at уже наступило;
//   - daily: правило ещё не срабатывало сегодня (UTC);
//   - event: в периодической оценке не участвует — срабатывает
//     только по доменному событию.
func ruleDue(rule *domain.AutomationRule, now time.Time) (bool, error) {
	switch rule.TriggerType {
	case domain.TriggerTypeCron:
		from := rule.CreatedAt
		if rule.LastFiredAt != nil {
			from = *rule.LastFiredAt
		}
		next, err := nextCron(rule.CronExpr, from)
		if err != nil {
			return false, err
		}
		return !next.After(now), nil

	case domain.TriggerTypeDaily:
		if rule.LastFiredAt == nil {
			return true, nil
		}
		lastDay := rule.LastFiredAt.UTC().Truncate(24 * time.Hour)
		today := now.UTC().Truncate(24 * time.Hour)
		return lastDay.Before(today), nil

	case domain.TriggerTypeEvent:
		return false, nil

	default:
		return false, fmt.Errorf("unknown trigger type %q", rule.TriggerType)
	}
}
