package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/grandcafe/concierge/internal/artifacts"
	"github.com/grandcafe/concierge/internal/modelrouter"
	"github.com/grandcafe/concierge/internal/observability"
	"github.com/grandcafe/concierge/internal/pending"
	"github.com/grandcafe/concierge/internal/subagent"
	"github.com/grandcafe/concierge/internal/tools"
	"github.com/grandcafe/concierge/internal/tools/validation"
	"github.com/grandcafe/concierge/internal/usage"
	"github.com/grandcafe/concierge/pkg/models"
)

const (
	// maxIterations caps model/tool round trips within one turn.
	maxIterations = 5

	// DefaultTurnBudget is the wall-clock ceiling for one turn. The
	// controller ends the turn itself before the transport would cut it.
	DefaultTurnBudget = 60 * time.Second

	// minIterationBudget is the remaining time below which the controller
	// stops starting new tool rounds.
	minIterationBudget = 5 * time.Second

	// historyLimit is how many stored messages feed the model.
	historyLimit = 30
)

// HistoryStore is the slice of the conversation store the controller needs.
type HistoryStore interface {
	History(ctx context.Context, conversationID string, limit int) ([]models.ChatMessage, error)
	Append(ctx context.Context, msg models.ChatMessage) error
}

// TurnRequest is one user message entering the assistant.
type TurnRequest struct {
	ConversationID string
	UserID         string
	Role           models.Role
	Message        string

	// ModelOverride optionally forces a model; entitlement is checked by
	// the router.
	ModelOverride string
}

// Config wires a Controller.
type Config struct {
	Source     StreamSource
	Registry   *tools.Registry
	Validator  *validation.Validator
	Pending    pending.Store
	Delegator  *subagent.Delegator
	Executor   ToolExecutor
	History    HistoryStore
	Logger     *observability.Logger
	Metrics    *observability.Metrics
	Tracer     *observability.Tracer
	TurnBudget time.Duration

	// Usage optionally accumulates per-user and per-model spend.
	Usage *usage.Tracker
}

// Controller runs assistant turns. One Controller serves all
// conversations; per-turn state lives on the stack of RunTurn's goroutine.
type Controller struct {
	source    StreamSource
	registry  *tools.Registry
	validator *validation.Validator
	pending   pending.Store
	delegator *subagent.Delegator
	executor  ToolExecutor
	history   HistoryStore
	log       *observability.Logger
	metrics   *observability.Metrics
	tracer    *observability.Tracer
	tracker   *usage.Tracker

	turnBudget time.Duration
	now        func() time.Time
	newID      func() string
}

// NewController builds a controller from config. Logger and Metrics may be
// nil in tests.
func NewController(cfg Config) *Controller {
	budget := cfg.TurnBudget
	if budget <= 0 {
		budget = DefaultTurnBudget
	}
	log := cfg.Logger
	if log == nil {
		log = observability.NewLogger(observability.LogConfig{Level: "error"})
	}
	return &Controller{
		source:     cfg.Source,
		registry:   cfg.Registry,
		validator:  cfg.Validator,
		pending:    cfg.Pending,
		delegator:  cfg.Delegator,
		executor:   cfg.Executor,
		history:    cfg.History,
		log:        log,
		metrics:    cfg.Metrics,
		tracer:     cfg.Tracer,
		tracker:    cfg.Usage,
		turnBudget: budget,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// RunTurn starts one assistant turn and returns its event stream. The
// stream always ends with exactly one terminal event (done or error) and
// is then closed.
func (c *Controller) RunTurn(ctx context.Context, req TurnRequest) (<-chan models.StreamEvent, error) {
	if !req.Role.Valid() {
		return nil, fmt.Errorf("unknown role %q", req.Role)
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, errors.New("empty message")
	}

	em := newEmitter(req.ConversationID, 64, c.now)
	go c.runTurn(ctx, req, em)
	return em.ch, nil
}

func (c *Controller) runTurn(ctx context.Context, req TurnRequest, em *emitter) {
	started := c.now()
	ctx, cancel := context.WithTimeout(ctx, c.turnBudget)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			c.log.Error(ctx, "turn panicked", "panic", fmt.Sprint(r))
			em.errorEvent("internal error", CodeInternal, fmt.Errorf("panic: %v", r))
		}
		em.close()
	}()

	outcome := "done"
	defer func() {
		if c.metrics != nil {
			c.metrics.TurnCounter.WithLabelValues(string(req.Role), outcome).Inc()
			c.metrics.TurnDuration.WithLabelValues(string(req.Role)).Observe(time.Since(started).Seconds())
		}
	}()
	if c.tracer != nil {
		var span trace.Span
		ctx, span = c.tracer.TraceTurn(ctx, req.ConversationID, string(req.Role))
		defer span.End()
	}

	history, err := c.history.History(ctx, req.ConversationID, historyLimit)
	if err != nil {
		outcome = "error"
		em.errorEvent("could not load conversation", CodeInternal, err)
		return
	}

	userMsg := models.ChatMessage{
		ID:             c.newID(),
		ConversationID: req.ConversationID,
		Role:           "user",
		Content:        req.Message,
		CreatedAt:      c.now(),
	}
	if err := c.history.Append(ctx, userMsg); err != nil {
		outcome = "error"
		em.errorEvent("could not persist message", CodeInternal, err)
		return
	}

	selection := modelrouter.SelectModel(req.Message, req.Role, req.ModelOverride)
	messageID := c.newID()
	em.emit(models.StreamEvent{
		Type: models.EventMessageStart,
		Start: &models.MessageStartPayload{
			MessageID:   messageID,
			Model:       selection.Model,
			ModelReason: selection.Reason,
		},
	})

	turn := &turnState{
		req:       req,
		messageID: messageID,
		model:     selection.Model,
		extractor: artifacts.NewExtractor(messageID),
		messages:  c.buildMessages(history, req.Message),
		specs:     c.toolSpecs(req.Role),
	}

	if err := c.iterateWithFallback(ctx, turn, em); err != nil {
		outcome = "error"
		switch {
		case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrTurnBudgetExceeded):
			outcome = "timeout"
			em.errorEvent("the assistant ran out of time for this request", CodeTimeout, err)
		case errors.Is(err, context.Canceled):
			em.errorEvent("request cancelled", CodeTimeout, err)
		default:
			em.errorEvent("the model request failed", CodeUpstream, err)
		}
		c.persistAssistant(turn)
		return
	}

	c.finalize(turn, em)
}

// iterateWithFallback runs the model loop, retrying once on the paired
// tier when the preferred model fails upstream. The retry announces the
// new model with a fresh message_start so the client knows what is
// answering and why.
func (c *Controller) iterateWithFallback(ctx context.Context, turn *turnState, em *emitter) error {
	err := c.iterate(ctx, turn, em)
	if err == nil || !upstreamError(err) {
		return err
	}
	fallback, ok := modelrouter.Fallback(turn.model)
	if !ok {
		return err
	}

	c.log.Warn(ctx, "model unavailable, retrying on fallback",
		"model", turn.model, "fallback", fallback, "error", err)
	reason := fmt.Sprintf("fell back from %s after an upstream failure", turn.model)
	turn.model = fallback
	em.emit(models.StreamEvent{
		Type: models.EventMessageStart,
		Start: &models.MessageStartPayload{
			MessageID:   turn.messageID,
			Model:       fallback,
			ModelReason: reason,
		},
	})
	return c.iterate(ctx, turn, em)
}

// upstreamError reports whether the loop failed in the model call rather
// than on a deadline or cancellation. Only upstream failures are worth
// retrying on the other tier.
func upstreamError(err error) bool {
	return !errors.Is(err, context.DeadlineExceeded) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, ErrTurnBudgetExceeded)
}

// turnState accumulates one turn across model iterations.
type turnState struct {
	req       TurnRequest
	messageID string
	model     string
	extractor *artifacts.Extractor
	messages  []Message
	specs     []ToolSpec

	rawText   strings.Builder
	toolsUsed []string
	usage     models.Usage
	pendingID string
}

// iterate runs the model/tool loop until the model answers with plain
// text, a pending action suspends the turn, or a bound trips.
func (c *Controller) iterate(ctx context.Context, turn *turnState, em *emitter) error {
	for iteration := 0; iteration < maxIterations; iteration++ {
		deadline, ok := ctx.Deadline()
		if ok && time.Until(deadline) < minIterationBudget {
			return ErrTurnBudgetExceeded
		}

		calls, err := c.streamOnce(ctx, turn, em, turn.specs)
		if err != nil {
			return err
		}
		if len(calls) == 0 {
			return nil
		}

		results, suspend, err := c.dispatchTools(ctx, turn, em, calls)
		if err != nil {
			return err
		}
		if suspend {
			return nil
		}

		turn.messages = append(turn.messages,
			Message{Role: "assistant", Content: turn.takeText(), ToolCalls: calls},
			Message{Role: "user", ToolResults: results},
		)
	}

	// Iteration cap: one last call without tools forces a text answer.
	c.log.Warn(ctx, "tool iteration limit reached", "conversation_id", turn.req.ConversationID)
	_, err := c.streamOnce(ctx, turn, em, nil)
	return err
}

// streamOnce performs one model call, forwarding text through the artifact
// extractor and collecting tool calls.
func (c *Controller) streamOnce(ctx context.Context, turn *turnState, em *emitter, specs []ToolSpec) ([]ToolCall, error) {
	reqStart := c.now()
	chunks, err := c.source.Stream(ctx, &Request{
		Model:    turn.model,
		System:   systemPrompt(turn.req.Role),
		Messages: turn.messages,
		Tools:    specs,
	})
	if err != nil {
		c.countModelRequest(turn.model, "error", reqStart)
		return nil, err
	}

	var calls []ToolCall
	for chunk := range chunks {
		if chunk.Error != nil {
			c.countModelRequest(turn.model, "error", reqStart)
			return nil, chunk.Error
		}
		if chunk.Text != "" {
			turn.rawText.WriteString(chunk.Text)
			c.emitExtracted(em, turn.extractor.Feed(chunk.Text))
		}
		if chunk.ToolCall != nil {
			calls = append(calls, *chunk.ToolCall)
		}
		if chunk.Usage != nil {
			turn.usage.Add(chunk.Usage)
		}
	}
	c.emitExtracted(em, turn.extractor.Flush())
	c.countModelRequest(turn.model, "success", reqStart)
	return calls, nil
}

func (c *Controller) emitExtracted(em *emitter, chunks []artifacts.Chunk) {
	for _, chunk := range chunks {
		if chunk.Artifact != nil {
			em.artifact(chunk.Artifact)
			continue
		}
		if chunk.Text != "" {
			em.token(chunk.Text)
		}
	}
}

// dispatchTools executes one batch of tool calls. It returns the results
// to feed back, and suspend=true when a pending action parks the turn.
func (c *Controller) dispatchTools(ctx context.Context, turn *turnState, em *emitter, calls []ToolCall) ([]ToolResult, bool, error) {
	var results []ToolResult
	for _, call := range calls {
		em.emit(models.StreamEvent{
			Type: models.EventToolStart,
			Tool: &models.ToolPayload{CallID: call.ID, Name: call.Name},
		})

		descriptor, err := c.registry.Resolve(call.Name, turn.req.Role)
		if err != nil {
			code := CodeUnknownTool
			if errors.Is(err, tools.ErrForbidden) {
				code = CodeForbidden
			}
			results = append(results, c.toolFailure(em, call, err.Error(), code))
			continue
		}

		switch descriptor.Kind {
		case tools.KindRead:
			results = append(results, c.runReadTool(ctx, turn, em, call))

		case tools.KindWrite:
			result, suspend := c.gateWriteTool(ctx, turn, em, call, descriptor)
			if suspend {
				return nil, true, nil
			}
			results = append(results, result)

		case tools.KindDelegate:
			results = append(results, c.runDelegateTool(ctx, turn, em, call))
		}
	}
	return results, false, nil
}

func (c *Controller) runReadTool(ctx context.Context, turn *turnState, em *emitter, call ToolCall) ToolResult {
	start := c.now()
	content, err := c.executor.Execute(ctx, call.Name, call.Input)
	elapsed := time.Since(start)

	if c.metrics != nil {
		c.metrics.ToolExecutionDuration.WithLabelValues(call.Name).Observe(elapsed.Seconds())
	}
	if err != nil {
		c.countTool(call.Name, "read", "error")
		return c.toolFailure(em, call, err.Error(), CodeExecution)
	}
	c.countTool(call.Name, "read", "success")
	turn.toolsUsed = append(turn.toolsUsed, call.Name)

	em.emit(models.StreamEvent{
		Type: models.EventToolResult,
		Tool: &models.ToolPayload{CallID: call.ID, Name: call.Name, Elapsed: elapsed},
	})
	return ToolResult{ToolCallID: call.ID, Content: content}
}

// gateWriteTool validates a write tool's parameters and parks the turn
// behind a pending action. The write itself only happens on confirmation.
func (c *Controller) gateWriteTool(ctx context.Context, turn *turnState, em *emitter, call ToolCall, descriptor tools.Descriptor) (ToolResult, bool) {
	normalized, verr := c.validator.Validate(call.Name, call.Input)
	if verr != nil {
		c.countTool(call.Name, "write", "error")
		// The validation detail goes back to the model so it can retry
		// with corrected parameters within the iteration budget.
		return c.toolFailure(em, call, verr.Error(), CodeValidation), false
	}

	var params map[string]any
	if err := json.Unmarshal(normalized, &params); err != nil {
		return c.toolFailure(em, call, "parameters are not an object", CodeValidation), false
	}

	action := models.PendingAction{
		ID:             c.newID(),
		UserID:         turn.req.UserID,
		ConversationID: turn.req.ConversationID,
		Tool:           call.Name,
		Description:    describeWrite(call.Name, params),
		Parameters:     params,
		Status:         models.ActionPending,
		CreatedAt:      c.now(),
		ExpiresAt:      c.now().Add(pending.DefaultTTL),
	}
	if err := c.pending.Create(ctx, action); err != nil {
		if errors.Is(err, pending.ErrActionOpen) {
			c.countTool(call.Name, "write", "denied")
			return c.toolFailure(em, call,
				"another action is already awaiting confirmation; resolve it first",
				CodePendingActionOpen), false
		}
		return c.toolFailure(em, call, err.Error(), CodeInternal), false
	}

	if c.metrics != nil {
		c.metrics.PendingActions.Inc()
	}
	turn.pendingID = action.ID
	turn.toolsUsed = append(turn.toolsUsed, call.Name)
	c.countTool(call.Name, "write", "success")

	em.emit(models.StreamEvent{
		Type: models.EventPendingAction,
		Pending: &models.PendingActionPayload{
			ID:          action.ID,
			Tool:        action.Tool,
			Description: action.Description,
			Parameters:  action.Parameters,
		},
	})
	return ToolResult{}, true
}

func (c *Controller) runDelegateTool(ctx context.Context, turn *turnState, em *emitter, call ToolCall) ToolResult {
	var input struct {
		Task string `json:"task"`
	}
	_ = json.Unmarshal(call.Input, &input)
	if input.Task == "" {
		input.Task = turn.req.Message
	}

	agentType := models.SubAgentType(strings.TrimPrefix(call.Name, "delegate_"))
	events, err := c.delegator.Delegate(ctx, subagent.Task{
		Agent:          agentType,
		Instruction:    input.Task,
		ConversationID: turn.req.ConversationID,
		UserID:         turn.req.UserID,
		Role:           turn.req.Role,
	})
	if err != nil {
		code := CodeExecution
		switch {
		case errors.Is(err, subagent.ErrDelegationActive):
			code = CodeDelegationActive
		case errors.Is(err, subagent.ErrRateLimited):
			code = CodeRateLimited
		}
		c.countTool(call.Name, "delegate", "error")
		return c.toolFailure(em, call, err.Error(), code)
	}

	var final models.SubAgentEvent
	for ev := range events {
		em.emit(models.StreamEvent{Type: models.EventSubAgent, SubAgent: cloneSubAgentEvent(ev)})
		if ev.Terminal() {
			final = ev
		}
	}

	turn.toolsUsed = append(turn.toolsUsed, call.Name)
	if final.Success == nil || !*final.Success {
		c.countTool(call.Name, "delegate", "error")
		msg := final.Error
		if msg == "" {
			msg = "delegated task failed"
		}
		return ToolResult{ToolCallID: call.ID, Content: msg, IsError: true}
	}

	c.countTool(call.Name, "delegate", "success")
	summary := final.Step
	if len(final.Artifacts) > 0 {
		summary = fmt.Sprintf("%s (%d artifact(s) attached to the response)", summary, len(final.Artifacts))
	}
	return ToolResult{ToolCallID: call.ID, Content: summary}
}

func (c *Controller) toolFailure(em *emitter, call ToolCall, message, code string) ToolResult {
	em.emit(models.StreamEvent{
		Type: models.EventToolError,
		Tool: &models.ToolPayload{CallID: call.ID, Name: call.Name, Error: message, Code: code},
	})
	return ToolResult{
		ToolCallID: call.ID,
		Content:    fmt.Sprintf("error (%s): %s", code, message),
		IsError:    true,
	}
}

// finalize persists the assistant message and closes the stream with cost
// and done events.
func (c *Controller) finalize(turn *turnState, em *emitter) {
	c.persistAssistant(turn)

	cost := usage.CalculateCost(turn.model, turn.usage)
	if c.tracker != nil {
		c.tracker.Record(usage.Record{
			Model:          turn.model,
			UserID:         turn.req.UserID,
			ConversationID: turn.req.ConversationID,
			Usage:          turn.usage,
			Cost:           cost,
			Timestamp:      c.now(),
		})
	}
	em.emit(models.StreamEvent{
		Type: models.EventCostSummary,
		Cost: &models.CostSummaryPayload{
			Usage:        turn.usage,
			CostEstimate: usage.FormatCost(cost),
			CacheHitRate: usage.CacheHitRate(turn.usage),
			Model:        turn.model,
		},
	})
	em.emit(models.StreamEvent{
		Type: models.EventDone,
		Done: &models.DonePayload{MessageID: turn.messageID, ToolsUsed: turn.toolsUsed},
	})

	if c.metrics != nil {
		c.metrics.TokensUsed.WithLabelValues(turn.model, "input").Add(float64(turn.usage.InputTokens))
		c.metrics.TokensUsed.WithLabelValues(turn.model, "output").Add(float64(turn.usage.OutputTokens))
		c.metrics.TokensUsed.WithLabelValues(turn.model, "cache_read").Add(float64(turn.usage.CacheReadTokens))
		c.metrics.TokensUsed.WithLabelValues(turn.model, "cache_write").Add(float64(turn.usage.CacheWriteTokens))
	}
}

func (c *Controller) persistAssistant(turn *turnState) {
	content := turn.rawText.String()
	if content == "" && turn.pendingID == "" {
		return
	}
	u := turn.usage
	msg := models.ChatMessage{
		ID:             turn.messageID,
		ConversationID: turn.req.ConversationID,
		Role:           "assistant",
		Content:        content,
		ToolsUsed:      turn.toolsUsed,
		ModelUsed:      turn.model,
		PendingAction:  turn.pendingID,
		Usage:          &u,
		CreatedAt:      c.now(),
	}
	// Persistence happens outside the turn deadline; losing the message
	// because the model ran long would drop paid-for output.
	pctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.history.Append(pctx, msg); err != nil {
		c.log.Error(pctx, "could not persist assistant message", "error", err)
	}
}

// takeText drains accumulated raw text for the current iteration's
// assistant message.
func (t *turnState) takeText() string {
	s := t.rawText.String()
	t.rawText.Reset()
	return s
}

func (c *Controller) buildMessages(history []models.ChatMessage, userMessage string) []Message {
	messages := make([]Message, 0, len(history)+1)
	for _, m := range history {
		if m.Content == "" {
			continue
		}
		messages = append(messages, Message{Role: m.Role, Content: m.Content})
	}
	return append(messages, Message{Role: "user", Content: userMessage})
}

func (c *Controller) toolSpecs(role models.Role) []ToolSpec {
	descriptors := c.registry.ToolsFor(role)
	specs := make([]ToolSpec, 0, len(descriptors))
	for _, d := range descriptors {
		specs = append(specs, ToolSpec{
			Name:        d.Name,
			Description: d.Description,
			InputSchema: d.InputSchema,
		})
	}
	return specs
}

func (c *Controller) countModelRequest(model, status string, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.ModelRequestCounter.WithLabelValues(c.source.Name(), model, status).Inc()
	c.metrics.ModelRequestDuration.WithLabelValues(c.source.Name(), model).Observe(time.Since(start).Seconds())
}

func (c *Controller) countTool(tool, kind, status string) {
	if c.metrics != nil {
		c.metrics.ToolExecutionCounter.WithLabelValues(tool, kind, status).Inc()
	}
}

// cloneSubAgentEvent copies an event so the emitter holds no reference
// into the delegator's buffer.
func cloneSubAgentEvent(ev models.SubAgentEvent) *models.SubAgentEvent {
	clone := ev
	return &clone
}

// describeWrite renders a short human-readable line for the confirmation
// prompt.
func describeWrite(tool string, params map[string]any) string {
	var details []string
	for _, key := range []string{"date", "start_time", "end_time", "guest_name", "title", "amount", "status"} {
		if v, ok := params[key]; ok {
			details = append(details, fmt.Sprintf("%s=%v", key, v))
		}
	}
	name := strings.ReplaceAll(tool, "_", " ")
	if len(details) == 0 {
		return name
	}
	return name + ": " + strings.Join(details, ", ")
}

func systemPrompt(role models.Role) string {
	return fmt.Sprintf(
		"You are the operations assistant for Gran Café, a restaurant and cocktail bar. "+
			"You are talking to a staff member with the %s role. "+
			"Use tools to answer with real data instead of guessing. "+
			"Any change to business data requires the user's confirmation; propose it via the matching tool and wait. "+
			"For charts, tables, documents, and diagrams, wrap the content in an artifact fence: "+
			"```artifact:TYPE:TITLE ... ```. Keep answers short and operational.",
		role,
	)
}
