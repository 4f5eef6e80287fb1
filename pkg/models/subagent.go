package models

// SubAgentType names a specialist delegated workflow.
type SubAgentType string

const (
	AgentDocumentGenerator  SubAgentType = "document_generator"
	AgentWebResearcher      SubAgentType = "web_researcher"
	AgentScheduleOptimizer  SubAgentType = "schedule_optimizer"
	AgentComplianceAuditor  SubAgentType = "compliance_auditor"
	AgentFinancialReporter  SubAgentType = "financial_reporter"
	AgentMarketingCampaign  SubAgentType = "marketing_campaign"
	AgentSportsEvents       SubAgentType = "sports_events"
	AgentAdvertisingManager SubAgentType = "advertising_manager"
	AgentCocktailSpecialist SubAgentType = "cocktail_specialist"
)

// SubAgentEvent is one progress snapshot of a delegated run. The event is
// terminal when Success is non-nil; every run emits at least one progress
// event before its single terminal event.
type SubAgentEvent struct {
	Agent     SubAgentType `json:"agent"`
	Task      string       `json:"task,omitempty"`
	Step      string       `json:"step,omitempty"`
	Success   *bool        `json:"success,omitempty"`
	Error     string       `json:"error,omitempty"`
	Artifacts []Artifact   `json:"artifacts,omitempty"`
}

// Terminal reports whether this event closes the delegated run.
func (e *SubAgentEvent) Terminal() bool {
	return e.Success != nil
}
