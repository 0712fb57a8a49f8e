package sentinel

import "strings"

// The AgentType constants are the fixed bucket vocabulary agent names/payloads
// classify into when a caller omits agent_type (§4.F "Classification rule").
const (
	AgentTypeAnalyzer      = "analyzer"
	AgentTypeDebugger      = "debugger"
	AgentTypeBuilder       = "builder"
	AgentTypeTester        = "tester"
	AgentTypeReviewer      = "reviewer"
	AgentTypeOptimizer     = "optimizer"
	AgentTypeSecurity      = "security"
	AgentTypeWriter        = "writer"
	AgentTypeDeployer      = "deployer"
	AgentTypeDataProcessor = "data-processor"
	AgentTypeMonitor       = "monitor"
	AgentTypeConfigurator  = "configurator"
	AgentTypeContext       = "context"
	AgentTypeCollector     = "collector"
	AgentTypeStorage       = "storage"
	AgentTypeSearcher      = "searcher"
	AgentTypeAPIHandler    = "api-handler"
	AgentTypeIntegrator    = "integrator"
	AgentTypeUIDeveloper   = "ui-developer"
	AgentTypeDesigner      = "designer"
	AgentTypeMLEngineer    = "ml-engineer"
	AgentTypePredictor     = "predictor"
	AgentTypeDatabaseAdmin = "database-admin"
	AgentTypeDataManager   = "data-manager"
	AgentTypeTranslator    = "translator"
	AgentTypeGenerator     = "generator"
	AgentTypeLinter        = "linter"
	AgentTypeGeneric       = "generic"
)

// classifyRule pairs a bucket label with the keywords that select it. Rules
// are evaluated in order, so more specific keywords should precede more
// general ones — the rule order below is itself the injective mapping: each
// keyword appears in exactly one rule and the first match wins, so a rule
// holding a keyword that contains another rule's keyword ("pentest" contains
// "test") comes before that rule.
type classifyRule struct {
	label    string
	keywords []string
}

var classifyRules = []classifyRule{
	{AgentTypeDebugger, []string{"debug", "troubleshoot", "diagnose"}},
	{AgentTypeAnalyzer, []string{"analy", "inspect", "audit"}},
	{AgentTypeSecurity, []string{"security", "vuln", "pentest", "secops"}},
	{AgentTypeTester, []string{"test", "qa", "spec-runner"}},
	{AgentTypeReviewer, []string{"review", "critic", "lint-review"}},
	{AgentTypeOptimizer, []string{"optimi", "perf", "tuning"}},
	{AgentTypeDeployer, []string{"deploy", "release", "rollout"}},
	{AgentTypeDatabaseAdmin, []string{"dba", "database-admin", "schema-admin"}},
	{AgentTypeDataProcessor, []string{"etl", "data-process", "transform"}},
	{AgentTypeDataManager, []string{"data-manage", "dataset"}},
	{AgentTypeMLEngineer, []string{"ml-", "model-train", "training"}},
	{AgentTypePredictor, []string{"predict", "forecast"}},
	{AgentTypeTranslator, []string{"translat", "localiz", "i18n"}},
	{AgentTypeGenerator, []string{"generat", "scaffold"}},
	{AgentTypeLinter, []string{"lint", "formatter", "style-check"}},
	{AgentTypeMonitor, []string{"monitor", "watcher", "alert"}},
	{AgentTypeConfigurator, []string{"config", "setup", "provision"}},
	{AgentTypeContext, []string{"context", "memory-loader"}},
	{AgentTypeCollector, []string{"collect", "harvest"}},
	{AgentTypeStorage, []string{"storage", "archive", "backup"}},
	{AgentTypeSearcher, []string{"search", "retriev", "finder"}},
	{AgentTypeAPIHandler, []string{"api-", "endpoint", "rest-"}},
	{AgentTypeIntegrator, []string{"integrat", "connector", "sync-"}},
	{AgentTypeUIDeveloper, []string{"ui-", "frontend", "component"}},
	{AgentTypeDesigner, []string{"design", "ux-", "mockup"}},
	{AgentTypeWriter, []string{"writ", "author", "draft", "doc-"}},
	{AgentTypeBuilder, []string{"build", "compile", "bundl"}},
}

// ClassifyAgentType applies the deterministic keyword mapping of §4.F over
// the agent name and payload string values, returning the first matching
// bucket label or AgentTypeGeneric if none match.
func ClassifyAgentType(agentName string, payload map[string]any) string {
	haystack := strings.ToLower(agentName)
	for _, v := range payload {
		if s, ok := v.(string); ok {
			haystack += " " + strings.ToLower(s)
		}
	}

	for _, rule := range classifyRules {
		for _, kw := range rule.keywords {
			if strings.Contains(haystack, kw) {
				return rule.label
			}
		}
	}
	return AgentTypeGeneric
}
