package guard

// Chain positions of the built-in guards. Cheap text checks run first,
// stateful consistency checks in the middle, the LLM critique last.
const (
	OrderLexical   = 1
	OrderEmotion   = 2
	OrderSchedule  = 3
	OrderImmutable = 4
	OrderDate      = 5
	OrderAnchor    = 6
	OrderRule      = 7
	OrderRelation  = 8
	OrderPacing    = 9
	OrderCritique  = 10
)

// RegisterBuiltins installs the full built-in guard chain into reg.
// Callers composing a custom chain register factories directly instead.
func RegisterBuiltins(reg *Registry) {
	reg.MustRegister(OrderLexical, "lexical_guard", NewLexicalGuard)
	reg.MustRegister(OrderEmotion, "emotion_guard", NewEmotionGuard)
	reg.MustRegister(OrderSchedule, "schedule_guard", NewScheduleGuard)
	reg.MustRegister(OrderImmutable, "immutable_guard", NewImmutableGuard)
	reg.MustRegister(OrderDate, "date_guard", NewDateGuard)
	reg.MustRegister(OrderAnchor, "anchor_guard", NewAnchorGuard)
	reg.MustRegister(OrderRule, "rule_guard", NewRuleGuard)
	reg.MustRegister(OrderRelation, "relation_guard", NewRelationGuard)
	reg.MustRegister(OrderPacing, "pacing_guard", NewPacingGuard)
	reg.MustRegister(OrderCritique, "critique_guard", NewCritiqueGuard)
}
