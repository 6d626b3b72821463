package webrequest

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	uuid "github.com/satori/go.uuid"
	"github.com/tidwall/gjson"
	"gitlab.com/kittcore/kitt"
	"gitlab.com/kittcore/ruleaction"
)

// RequestMatcher instance type of declarative conditions
const RequestMatcher = "declarativeWebRequest.RequestMatcher"

// ParseDeclarativeRule builds a rule from the JSON an extension passed to
// declarativeWebRequest.onRequest.addRules. Unsupported actions are skipped, a rule
// left without any action or condition is an error. Rules without an id get one.
func ParseDeclarativeRule(extensionID string, raw []byte, dispatcher kitt.EventDispatcher) (*Rule, error) {
	if !gjson.ValidBytes(raw) {
		return nil, errors.New("declarative rule is not valid json")
	}
	parsed := gjson.ParseBytes(raw)

	rule := &Rule{
		ID:          parsed.Get("id").String(),
		ExtensionID: extensionID,
		Priority:    int(parsed.Get("priority").Int()),
		Conditions:  make([]Condition, 0),
		Actions:     make([]kitt.RuleAction, 0),
	}
	if rule.ID == "" {
		rule.ID = uuid.NewV4().String()
	}

	for _, c := range parsed.Get("conditions").Array() {
		condition, err := parseRequestMatcher(c)
		if err != nil {
			return nil, errors.Wrapf(err, "rule %s", rule.ID)
		}
		rule.Conditions = append(rule.Conditions, condition)
	}
	if len(rule.Conditions) == 0 {
		return nil, errors.Errorf("rule %s has no conditions", rule.ID)
	}

	for _, a := range parsed.Get("actions").Array() {
		props := kitt.Properties{}
		if err := json.Unmarshal([]byte(a.Raw), &props); err != nil {
			return nil, errors.Wrapf(err, "rule %s action", rule.ID)
		}
		action := ruleaction.New(props, dispatcher)
		if action == nil {
			log.Warn().Str("rule_id", rule.ID).Str("action", a.Get("instanceType").String()).Msg("skipping unsupported declarative action")
			continue
		}
		rule.Actions = append(rule.Actions, action)
	}
	if len(rule.Actions) == 0 {
		return nil, errors.Errorf("rule %s has no supported actions", rule.ID)
	}
	return rule, nil
}

// parseRequestMatcher returns an And group of everything the matcher sets, matching
// onBeforeRequest only unless stages are given
func parseRequestMatcher(matcher gjson.Result) (Condition, error) {
	if instanceType := matcher.Get("instanceType").String(); instanceType != "" && instanceType != RequestMatcher {
		return nil, errors.Errorf("unsupported condition %s", instanceType)
	}

	group := And()
	stages := Or()
	for _, s := range matcher.Get("stages").Array() {
		stages.Add(&DetailPath{Path: PathStage, Value: s.String()})
	}
	if len(stages.Conditions) == 0 {
		stages.Add(&DetailPath{Path: PathStage, Value: string(kitt.StageBeforeRequest)})
	}
	group.Add(stages)

	if u := matcher.Get("url"); u.Exists() {
		filter := &URLFilter{}
		if err := json.Unmarshal([]byte(u.Raw), filter); err != nil {
			return nil, errors.Wrap(err, "url filter")
		}
		if err := filter.Compile(); err != nil {
			return nil, errors.Wrap(err, "url filter urlMatches")
		}
		group.Add(filter)
	}

	if types := matcher.Get("resourceType").Array(); len(types) > 0 {
		rt := make(ResourceTypes, 0, len(types))
		for _, t := range types {
			rt = append(rt, t.String())
		}
		group.Add(rt)
	}
	return group, nil
}
