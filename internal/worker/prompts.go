package worker

// #region roles

// Role names used across the engine. Each maps to the system
// instructions the capability runs under.
const (
	RoleGeneration = "policy_generation"
	RoleComparison = "policy_comparison"
	RoleEvolution  = "policy_evolution"
	RoleResearch   = "research_synthesis"
	RoleReport     = "policy_report"
)

// #endregion

// #region instructions

var roleInstructions = map[string]string{
	RoleGeneration: `Generate innovative, practical, and effective policy proposals for local governments on the given policy topic.
For each proposal provide a clear descriptive title, a detailed description, a strong rationale, impacts on key stakeholder groups, potential implementation challenges, equity considerations, and economic analysis.
Generate diverse proposals with different approaches to solving the problem.`,

	RoleComparison: `Compare two policy proposals to determine which is more effective and equitable.
Evaluate environmental impact, economic feasibility, social equity, implementation complexity, and stakeholder acceptance across small businesses, large retailers, low-income residents, environmental advocates, local government implementers, and industry.
Identify the winning proposal by its full title and explain your reasoning in one paragraph.`,

	RoleEvolution: `Improve an existing policy proposal while preserving its core intent.
Identify specific improvements, integrate them into an evolved version, and enumerate the deltas from the original.`,

	RoleResearch: `Synthesize web research findings into a concise summary of key insights for policy design.
Focus on actionable, specific information: successful implementations, example ordinances, effectiveness evidence, and stakeholder responses.`,

	RoleReport: `Create a comprehensive final policy report summarizing the best policies identified through the evolution process, with an executive summary, top proposals, stakeholder impact analysis, key considerations, and implementation steps.`,
}

func systemPrompt(role string) string {
	if s, ok := roleInstructions[role]; ok {
		return s
	}
	return "You are a policy analysis assistant for local governments."
}

// #endregion
