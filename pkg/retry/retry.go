package retry

import (
	"context"
	"time"
)

// Policy задает параметры повторных попыток
type Policy struct {
	MaxAttempts int           // Общее количество попыток, включая первую
	BaseDelay   time.Duration // Задержка перед второй попыткой
	MaxDelay    time.Duration // Потолок задержки при экспоненциальном росте
}

// DefaultPolicy политика по умолчанию для вызовов внешних сервисов
var DefaultPolicy = Policy{
	MaxAttempts: 3,
	BaseDelay:   200 * time.Millisecond,
	MaxDelay:    5 * time.Second,
}

// Retryable определяет, имеет ли смысл повторять операцию после данной ошибки
type Retryable func(error) bool

// Do выполняет операцию с ограниченным числом повторов и экспоненциальной задержкой.
// Повторяется только если retryable(err) возвращает true; последняя ошибка возвращается
// вызывающему после исчерпания попыток. Отмена контекста прерывает ожидание.
func Do(ctx context.Context, p Policy, retryable Retryable, op func(ctx context.Context) error) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}

	var lastErr error
	delay := p.BaseDelay

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		if !retryable(lastErr) {
			return lastErr
		}

		if attempt == p.MaxAttempts {
			break
		}

		// Ждем перед следующей попыткой, учитывая отмену контекста
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}

	return lastErr
}
