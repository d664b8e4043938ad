package executor

import "errors"

// Ошибки executor'а.
var (
	// ErrWorkflowNotFound — workflow-определение отсутствует в БД.
	// Data error: retry не поможет, job уходит в терминальный failed.
	ErrWorkflowNotFound = errors.New("workflow definition not found")

	// ErrWorkflowInactive — workflow не активен на момент выполнения.
	// Не ошибка, а намеренный пропуск: job отменяется.
	ErrWorkflowInactive = errors.New("workflow is not active")

	// ErrDelegateFailed — вызов внешнего execution delegate не удался.
	ErrDelegateFailed = errors.New("execution delegate call failed")
)
