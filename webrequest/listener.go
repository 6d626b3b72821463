package webrequest

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"gitlab.com/kittcore/kitt"
)

// ListenerFilter is the chrome.webRequest RequestFilter given to addListener
type ListenerFilter struct {
	URLs  []string
	Types []string
}

// ParseListenerFilter from the filter object of a listenerStorage.add call
func ParseListenerFilter(filter gjson.Result) *ListenerFilter {
	f := &ListenerFilter{
		URLs:  make([]string, 0),
		Types: make([]string, 0),
	}
	for _, u := range filter.Get("urls").Array() {
		f.URLs = append(f.URLs, u.String())
	}
	for _, t := range filter.Get("types").Array() {
		f.Types = append(f.Types, t.String())
	}
	return f
}

// StageForEvent returns the request stage a webRequest event fires on
func StageForEvent(event string) kitt.Stage {
	if idx := strings.LastIndex(event, "."); idx >= 0 {
		return kitt.Stage(event[idx+1:])
	}
	return kitt.Stage(event)
}

// NewListenerRule matches the event stage, any of the filter urls and any of the
// filter types. The rule carries the listener's callback id so it can be removed
// together with the listener.
func NewListenerRule(extensionID, event string, filter *ListenerFilter, action kitt.Blockable) (*Rule, error) {
	if action.ListenerID() == "" {
		return nil, errors.New("listener action has no callback id")
	}

	group := And(&DetailPath{Path: PathStage, Value: string(StageForEvent(event))})
	if filter != nil && len(filter.URLs) > 0 {
		urls := Or()
		for _, pattern := range filter.URLs {
			glob, err := NewChromeGlob(pattern)
			if err != nil {
				log.Warn().Err(err).Str("event", event).Msg("skipping invalid listener url filter")
				continue
			}
			urls.Add(glob)
		}
		if len(urls.Conditions) == 0 {
			return nil, errors.Errorf("no valid url filter for %s listener", event)
		}
		group.Add(urls)
	}

	if filter != nil && len(filter.Types) > 0 {
		types := Or()
		for _, t := range filter.Types {
			types.Add(&DetailPath{Path: PathResourceType, Value: t})
		}
		group.Add(types)
	}

	return &Rule{
		ID:          action.ListenerID(),
		ExtensionID: extensionID,
		Conditions:  []Condition{group},
		Actions:     []kitt.RuleAction{action},
	}, nil
}

// AddListenerRule builds and adds the rule for a listener action
func (d *Dispatcher) AddListenerRule(extensionID, event string, filter *ListenerFilter, action kitt.Blockable) (*Rule, error) {
	rule, err := NewListenerRule(extensionID, event, filter, action)
	if err != nil {
		return nil, err
	}
	d.Add(rule)
	return rule, nil
}
