package kitt

// RuleRecord a persisted declarative rule
type RuleRecord struct {
	ExtensionID string
	ID          string
	Priority    int
	Seq         uint64
	Raw         []byte // rule JSON as registered by the extension
}

// RuleStorer persists declarative rules so they can be restored when a JS context restarts
type RuleStorer interface {
	Init() error
	AddRule(rule *RuleRecord) error
	RemoveRules(extensionID string, ruleIDs []string) error
	Rules(extensionID string) ([]*RuleRecord, error)
	Close() error
}
