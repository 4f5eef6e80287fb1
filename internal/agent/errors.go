package agent

import "errors"

// Error codes surfaced in tool_error and error events. Clients branch on
// these rather than on message text.
const (
	CodeUnknownTool       = "unknown_tool"
	CodeForbidden         = "forbidden"
	CodeValidation        = "validation_failed"
	CodePendingActionOpen = "pending_action_open"
	CodeDelegationActive  = "delegation_active"
	CodeRateLimited       = "rate_limited"
	CodeExecution         = "execution_failed"
	CodeUpstream          = "upstream_error"
	CodeTimeout           = "timeout"
	CodeInternal          = "internal_error"
)

var (
	// ErrTurnBudgetExceeded ends a turn that outran its wall-clock budget.
	ErrTurnBudgetExceeded = errors.New("turn budget exceeded")

	// ErrNoProgress ends a turn where the model kept requesting tools past
	// the iteration cap.
	ErrNoProgress = errors.New("tool iteration limit reached")
)
