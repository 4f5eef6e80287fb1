package subagent

import (
	"context"
	"fmt"
	"strings"

	"github.com/grandcafe/concierge/internal/artifacts"
	"github.com/grandcafe/concierge/internal/modelrouter"
	"github.com/grandcafe/concierge/pkg/models"
)

// Completer produces one model completion. The agent provider satisfies
// this; tests substitute fakes.
type Completer interface {
	Complete(ctx context.Context, model, system, prompt string) (string, models.Usage, error)
}

// systemPrompts holds the specialist instructions per agent type. All
// specialists may emit artifact fences, which the runner extracts.
var systemPrompts = map[models.SubAgentType]string{
	models.AgentDocumentGenerator: "You are a document specialist for a restaurant. Produce the requested " +
		"document as an artifact (pdf or html) with clean structure and a title.",
	models.AgentWebResearcher: "You are a research specialist. Summarize what is known about the topic " +
		"for a restaurant operator, with concrete numbers where possible.",
	models.AgentScheduleOptimizer: "You are a staff scheduling specialist. Propose a weekly schedule that " +
		"respects availability, roles, and labor limits. Emit the schedule as a table artifact.",
	models.AgentComplianceAuditor: "You are a compliance specialist for hospitality businesses. Audit the " +
		"described situation and list findings by severity.",
	models.AgentFinancialReporter: "You are a financial reporting specialist. Produce the requested report " +
		"with revenue, costs, and margin, emitting charts as artifacts.",
	models.AgentMarketingCampaign: "You are a marketing specialist for restaurants and bars. Draft campaign " +
		"copy and a channel plan for the requested promotion.",
	models.AgentSportsEvents: "You are a sports programming specialist. Propose upcoming broadcast events " +
		"worth showing, with dates, kickoff times, and channels.",
	models.AgentAdvertisingManager: "You are an advertising specialist. Plan ad placements and budgets for " +
		"the requested goal.",
	models.AgentCocktailSpecialist: "You are a cocktail specialist. Design recipes with measures, method, " +
		"glassware, and cost per serve.",
}

// NewLLMRunners builds one model-backed runner per known agent type, all
// sharing the completer.
func NewLLMRunners(completer Completer) map[models.SubAgentType]Runner {
	runners := make(map[models.SubAgentType]Runner, len(systemPrompts))
	for agent, system := range systemPrompts {
		runners[agent] = &llmRunner{completer: completer, agent: agent, system: system}
	}
	return runners
}

type llmRunner struct {
	completer Completer
	agent     models.SubAgentType
	system    string
}

func (r *llmRunner) Run(ctx context.Context, task Task, progress func(step string)) (*Result, error) {
	progress("working on: " + truncate(task.Instruction, 120))

	// Specialists always use the deep model; delegation exists for work
	// the fast tier handles poorly.
	text, _, err := r.completer.Complete(ctx, modelrouter.ModelDeep, r.system, task.Instruction)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", r.agent, err)
	}

	messageID := fmt.Sprintf("%s-%s", task.ConversationID, r.agent)
	plain, arts := artifacts.Parse(messageID, text)

	result := &Result{Summary: strings.TrimSpace(plain)}
	for _, a := range arts {
		result.Artifacts = append(result.Artifacts, *a)
	}
	if result.Summary == "" && len(result.Artifacts) > 0 {
		result.Summary = fmt.Sprintf("produced %d artifact(s)", len(result.Artifacts))
	}
	return result, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
