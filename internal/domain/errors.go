package domain

import (
	"errors"
	"fmt"
)

// Application errors
var (
	// ErrNotFound запись не найдена
	ErrNotFound = errors.New("record not found")

	// ErrForbidden действие запрещено для данного пользователя
	ErrForbidden = errors.New("forbidden")

	// ErrDuplicateActiveSubscription активная подписка для этой тройки
	// (подписчик, автор, уровень) уже существует
	ErrDuplicateActiveSubscription = errors.New("duplicate active subscription")

	// ErrInvalidTier уровень подписки не существует или неактивен
	ErrInvalidTier = errors.New("invalid or inactive tier")

	// ErrNotReactivatable ресурс на стороне процессора окончательно удален,
	// подписку нужно создавать заново
	ErrNotReactivatable = errors.New("subscription is not reactivatable")

	// ErrInvalidOperation неверная операция для текущего статуса
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrGatewayTransient временная ошибка платежного процессора,
	// повтор имеет смысл
	ErrGatewayTransient = errors.New("payment gateway transient error")

	// ErrGatewayPermanent постоянная ошибка платежного процессора,
	// повтор не имеет смысла
	ErrGatewayPermanent = errors.New("payment gateway permanent error")

	// ErrResourceMissing процессор сообщает, что ресурс не существует
	ErrResourceMissing = errors.New("processor resource missing")

	// ErrWebhookValidationFailed не удалось проверить подпись вебхука
	ErrWebhookValidationFailed = errors.New("webhook validation failed")
)

// GatewayError представляет ошибку вызова платежного процессора
type GatewayError struct {
	Operation   string
	Code        string
	Message     string
	StatusCode  int
	Kind        error // ErrGatewayTransient, ErrGatewayPermanent или ErrResourceMissing
	OriginalErr error
}

// Error реализует интерфейс error
func (e *GatewayError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("gateway %s failed [%s]: %s: %v", e.Operation, e.Code, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("gateway %s failed [%s]: %s", e.Operation, e.Code, e.Message)
}

// Unwrap возвращает оригинальную ошибку
func (e *GatewayError) Unwrap() error {
	return e.OriginalErr
}

// Is сопоставляет ошибку с ее классом (временная/постоянная/ресурс отсутствует)
func (e *GatewayError) Is(target error) bool {
	return target == e.Kind
}

// NewGatewayError создает новую ошибку платежного шлюза
func NewGatewayError(operation, code, message string, statusCode int, kind, err error) *GatewayError {
	return &GatewayError{
		Operation:   operation,
		Code:        code,
		Message:     message,
		StatusCode:  statusCode,
		Kind:        kind,
		OriginalErr: err,
	}
}

// SubscriptionError представляет ошибку операции над подпиской
type SubscriptionError struct {
	Code           string
	Message        string
	SubscriptionID string
	OriginalErr    error
}

// Error реализует интерфейс error
func (e *SubscriptionError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("subscription error [%s]: %s: %v (subscription_id: %s)", e.Code, e.Message, e.OriginalErr, e.SubscriptionID)
	}
	return fmt.Sprintf("subscription error [%s]: %s (subscription_id: %s)", e.Code, e.Message, e.SubscriptionID)
}

// Unwrap возвращает оригинальную ошибку
func (e *SubscriptionError) Unwrap() error {
	return e.OriginalErr
}

// NewSubscriptionError создает новую ошибку подписки
func NewSubscriptionError(code, message, subscriptionID string, err error) *SubscriptionError {
	return &SubscriptionError{
		Code:           code,
		Message:        message,
		SubscriptionID: subscriptionID,
		OriginalErr:    err,
	}
}
