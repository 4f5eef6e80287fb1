package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/grandcafe/concierge/pkg/models"
)

// ErrNotOwner rejects resolution of an action created for another user.
var ErrNotOwner = errors.New("action belongs to a different user")

// ResolveRequest confirms or rejects one pending write action.
type ResolveRequest struct {
	ActionID string
	UserID   string
	Outcome  models.ActionStatus
}

// ResolveResult is the non-streaming reply to a resolution. Event mirrors
// the shape stream clients already parse; Output carries the backend's
// response when the action was confirmed and executed.
type ResolveResult struct {
	Event  models.StreamEvent `json:"event"`
	Output string             `json:"output,omitempty"`
}

// ResolveAction settles a pending action. Confirmation executes the write
// against the backend; rejection just closes the action. Either way the
// outcome lands in conversation history so later turns see it.
func (c *Controller) ResolveAction(ctx context.Context, req ResolveRequest) (*ResolveResult, error) {
	if req.Outcome != models.ActionConfirmed && req.Outcome != models.ActionRejected {
		return nil, fmt.Errorf("outcome must be %s or %s", models.ActionConfirmed, models.ActionRejected)
	}

	action, err := c.pending.Get(ctx, req.ActionID)
	if err != nil {
		return nil, err
	}
	if action.UserID != req.UserID {
		return nil, ErrNotOwner
	}

	resolved, err := c.pending.Resolve(ctx, req.ActionID, req.Outcome)
	if err != nil {
		return nil, err
	}
	if c.metrics != nil {
		c.metrics.PendingActions.Dec()
		c.metrics.PendingOutcomes.WithLabelValues(string(req.Outcome)).Inc()
	}

	var output string
	if req.Outcome == models.ActionConfirmed {
		output, err = c.executeConfirmed(ctx, resolved)
		if err != nil {
			c.countTool(resolved.Tool, "write", "error")
			c.recordResolution(resolved, req.Outcome, fmt.Sprintf("execution failed: %v", err))
			return nil, fmt.Errorf("action confirmed but execution failed: %w", err)
		}
		c.countTool(resolved.Tool, "write", "executed")
	}

	c.recordResolution(resolved, req.Outcome, output)
	c.log.Info(ctx, "pending action resolved",
		"action_id", resolved.ID, "tool", resolved.Tool, "outcome", string(req.Outcome))

	return &ResolveResult{
		Event: models.StreamEvent{
			Type:           models.EventPendingActionResolved,
			Time:           c.now(),
			ConversationID: resolved.ConversationID,
			Pending: &models.PendingActionPayload{
				ID:          resolved.ID,
				Tool:        resolved.Tool,
				Description: resolved.Description,
				Parameters:  resolved.Parameters,
				Outcome:     string(req.Outcome),
			},
		},
		Output: output,
	}, nil
}

func (c *Controller) executeConfirmed(ctx context.Context, action models.PendingAction) (string, error) {
	params, err := json.Marshal(action.Parameters)
	if err != nil {
		return "", fmt.Errorf("encode parameters: %w", err)
	}
	if c.tracer != nil {
		tctx, span := c.tracer.TraceToolExecution(ctx, action.Tool)
		defer span.End()
		ctx = tctx
	}
	return c.executor.Execute(ctx, action.Tool, params)
}

// recordResolution writes the outcome into history so the model sees what
// happened to its proposal on the next turn.
func (c *Controller) recordResolution(action models.PendingAction, outcome models.ActionStatus, output string) {
	content := fmt.Sprintf("[%s %s]", action.Description, outcome)
	if outcome == models.ActionConfirmed && output != "" {
		content = fmt.Sprintf("%s %s", content, strings.TrimSpace(output))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.history.Append(ctx, models.ChatMessage{
		ID:             c.newID(),
		ConversationID: action.ConversationID,
		Role:           "assistant",
		Content:        content,
		CreatedAt:      c.now(),
	})
	if err != nil {
		c.log.Error(ctx, "could not record action resolution", "error", err, "action_id", action.ID)
	}
}

// OpenAction reports the conversation's unresolved action, if any.
func (c *Controller) OpenAction(ctx context.Context, conversationID string) (*models.PendingAction, error) {
	action, ok, err := c.pending.Open(ctx, conversationID)
	if err != nil || !ok {
		return nil, err
	}
	return &action, nil
}
