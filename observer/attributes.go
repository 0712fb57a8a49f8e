package observer

import "go.opentelemetry.io/otel/attribute"

// Attribute keys for ingestion, metrics, and relationship spans.
var (
	AttrEventType   = attribute.Key("event.hook_type")
	AttrSessionID   = attribute.Key("event.session_id")
	AttrSourceApp   = attribute.Key("event.source_app")
	AttrCorrelation = attribute.Key("event.correlation_id")

	AttrAgentID     = attribute.Key("agent.id")
	AttrAgentName   = attribute.Key("agent.name")
	AttrAgentType   = attribute.Key("agent.type")
	AttrAgentStatus = attribute.Key("agent.status")

	AttrCacheOp     = attribute.Key("cache.op")
	AttrCacheKey    = attribute.Key("cache.key")
	AttrCircuitState = attribute.Key("circuit.state")

	AttrSyncOpKind   = attribute.Key("sync.op_kind")
	AttrSyncAttempts = attribute.Key("sync.attempts")

	AttrRelParent = attribute.Key("relationship.parent_session_id")
	AttrRelChild  = attribute.Key("relationship.child_session_id")
)
