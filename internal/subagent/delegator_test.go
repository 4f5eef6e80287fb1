package subagent

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/grandcafe/concierge/internal/observability"
	"github.com/grandcafe/concierge/pkg/models"
)

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.LogConfig{Output: io.Discard})
}

func drain(t *testing.T, events <-chan models.SubAgentEvent) []models.SubAgentEvent {
	t.Helper()
	var out []models.SubAgentEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("event stream never closed")
		}
	}
}

func checkShape(t *testing.T, events []models.SubAgentEvent) {
	t.Helper()
	if len(events) < 2 {
		t.Fatalf("got %d events, want at least one progress plus one terminal", len(events))
	}
	terminals := 0
	for i, ev := range events {
		if ev.Terminal() {
			terminals++
			if i != len(events)-1 {
				t.Errorf("terminal event at position %d of %d", i, len(events))
			}
		}
	}
	if terminals != 1 {
		t.Errorf("got %d terminal events, want exactly 1", terminals)
	}
}

func newTestDelegator(runner Runner) *Delegator {
	return NewDelegator(
		map[models.SubAgentType]Runner{models.AgentWebResearcher: runner},
		time.Second, testLogger(), nil,
	)
}

func TestDelegate_SuccessStreamShape(t *testing.T) {
	d := newTestDelegator(RunnerFunc(func(_ context.Context, _ Task, progress func(string)) (*Result, error) {
		progress("searching")
		progress("summarizing")
		return &Result{Summary: "three competitors found"}, nil
	}))

	events, err := d.Delegate(context.Background(), Task{
		Agent:          models.AgentWebResearcher,
		Instruction:    "research nearby competitors",
		ConversationID: "conv-1",
	})
	if err != nil {
		t.Fatalf("Delegate: %v", err)
	}

	all := drain(t, events)
	checkShape(t, all)
	if len(all) != 4 {
		t.Fatalf("got %d events, want starting + 2 progress + terminal", len(all))
	}
	final := all[len(all)-1]
	if final.Success == nil || !*final.Success {
		t.Errorf("final event = %+v, want success", final)
	}
	if final.Step != "three competitors found" {
		t.Errorf("final step = %q", final.Step)
	}
	for _, ev := range all {
		if ev.Agent != models.AgentWebResearcher {
			t.Errorf("event missing agent: %+v", ev)
		}
	}
}

func TestDelegate_InstantRunnerStillEmitsProgress(t *testing.T) {
	d := newTestDelegator(RunnerFunc(func(context.Context, Task, func(string)) (*Result, error) {
		return &Result{Summary: "done"}, nil
	}))

	events, err := d.Delegate(context.Background(), Task{
		Agent: models.AgentWebResearcher, ConversationID: "conv-1",
	})
	if err != nil {
		t.Fatalf("Delegate: %v", err)
	}
	checkShape(t, drain(t, events))
}

func TestDelegate_RunnerErrorBecomesTerminalFailure(t *testing.T) {
	d := newTestDelegator(RunnerFunc(func(context.Context, Task, func(string)) (*Result, error) {
		return nil, errors.New("upstream unreachable")
	}))

	events, _ := d.Delegate(context.Background(), Task{
		Agent: models.AgentWebResearcher, ConversationID: "conv-1",
	})
	all := drain(t, events)
	checkShape(t, all)
	final := all[len(all)-1]
	if final.Success == nil || *final.Success {
		t.Fatalf("final = %+v, want failure", final)
	}
	if final.Error == "" {
		t.Error("failure carries no error text")
	}
}

func TestDelegate_PanicBecomesTerminalFailure(t *testing.T) {
	d := newTestDelegator(RunnerFunc(func(context.Context, Task, func(string)) (*Result, error) {
		panic("boom")
	}))

	events, _ := d.Delegate(context.Background(), Task{
		Agent: models.AgentWebResearcher, ConversationID: "conv-1",
	})
	all := drain(t, events)
	checkShape(t, all)
	final := all[len(all)-1]
	if final.Success == nil || *final.Success {
		t.Fatalf("final = %+v, want failure", final)
	}
}

func TestDelegate_TimeoutBecomesTerminalFailure(t *testing.T) {
	d := NewDelegator(
		map[models.SubAgentType]Runner{
			models.AgentWebResearcher: RunnerFunc(func(ctx context.Context, _ Task, _ func(string)) (*Result, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			}),
		},
		50*time.Millisecond, testLogger(), nil,
	)

	events, _ := d.Delegate(context.Background(), Task{
		Agent: models.AgentWebResearcher, ConversationID: "conv-1",
	})
	all := drain(t, events)
	checkShape(t, all)
	final := all[len(all)-1]
	if final.Success == nil || *final.Success {
		t.Fatalf("final = %+v, want timeout failure", final)
	}
}

func TestDelegate_SecondDelegationRejected(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	d := newTestDelegator(RunnerFunc(func(context.Context, Task, func(string)) (*Result, error) {
		close(started)
		<-release
		return &Result{}, nil
	}))

	events, err := d.Delegate(context.Background(), Task{
		Agent: models.AgentWebResearcher, ConversationID: "conv-1",
	})
	if err != nil {
		t.Fatalf("Delegate: %v", err)
	}
	<-started

	if _, err := d.Delegate(context.Background(), Task{
		Agent: models.AgentWebResearcher, ConversationID: "conv-1",
	}); !errors.Is(err, ErrDelegationActive) {
		t.Fatalf("second Delegate err = %v, want ErrDelegationActive", err)
	}

	// A different conversation can delegate concurrently.
	other, err := d.Delegate(context.Background(), Task{
		Agent: models.AgentWebResearcher, ConversationID: "conv-2",
	})
	if err != nil {
		t.Fatalf("other conversation Delegate: %v", err)
	}

	close(release)
	drain(t, events)
	drain(t, other)

	// The slot frees once the run completes.
	if d.Active("conv-1") {
		t.Error("conversation still marked active after completion")
	}
}

func TestDelegate_UnknownAgent(t *testing.T) {
	d := newTestDelegator(RunnerFunc(func(context.Context, Task, func(string)) (*Result, error) {
		return &Result{}, nil
	}))
	if _, err := d.Delegate(context.Background(), Task{
		Agent: models.AgentCocktailSpecialist, ConversationID: "conv-1",
	}); !errors.Is(err, ErrUnknownAgent) {
		t.Fatalf("err = %v, want ErrUnknownAgent", err)
	}
}

type delegatorFakeCompleter struct {
	mu     sync.Mutex
	text   string
	err    error
	system string
}

func (f *delegatorFakeCompleter) Complete(_ context.Context, _, system, _ string) (string, models.Usage, error) {
	f.mu.Lock()
	f.system = system
	f.mu.Unlock()
	return f.text, models.Usage{InputTokens: 10, OutputTokens: 5}, f.err
}

func TestLLMRunner_ExtractsArtifacts(t *testing.T) {
	completer := &delegatorFakeCompleter{
		text: "Here is the schedule.\n```artifact:table:Week 36\nmon,tue\n```",
	}
	runners := NewLLMRunners(completer)

	runner, ok := runners[models.AgentScheduleOptimizer]
	if !ok {
		t.Fatal("no runner for schedule optimizer")
	}

	var steps []string
	result, err := runner.Run(context.Background(), Task{
		Agent:          models.AgentScheduleOptimizer,
		Instruction:    "plan week 36",
		ConversationID: "conv-9",
	}, func(step string) { steps = append(steps, step) })
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(steps) == 0 {
		t.Error("runner reported no progress")
	}
	if len(result.Artifacts) != 1 {
		t.Fatalf("got %d artifacts, want 1", len(result.Artifacts))
	}
	if result.Artifacts[0].Title != "Week 36" {
		t.Errorf("artifact title = %q", result.Artifacts[0].Title)
	}
	if result.Summary != "Here is the schedule." {
		t.Errorf("summary = %q", result.Summary)
	}
	if completer.system == "" {
		t.Error("runner sent no system prompt")
	}
}

func TestNewLLMRunners_CoversEveryAgentType(t *testing.T) {
	runners := NewLLMRunners(&delegatorFakeCompleter{})
	for _, agent := range []models.SubAgentType{
		models.AgentDocumentGenerator, models.AgentWebResearcher,
		models.AgentScheduleOptimizer, models.AgentComplianceAuditor,
		models.AgentFinancialReporter, models.AgentMarketingCampaign,
		models.AgentSportsEvents, models.AgentAdvertisingManager,
		models.AgentCocktailSpecialist,
	} {
		if _, ok := runners[agent]; !ok {
			t.Errorf("no runner for %s", agent)
		}
	}
}
