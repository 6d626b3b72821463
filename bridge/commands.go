package bridge

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	uuid "github.com/satori/go.uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"gitlab.com/kittcore/kitt"
	"gitlab.com/kittcore/ruleaction"
	"gitlab.com/kittcore/webrequest"
)

// native command names
const (
	cmdListenerAdd    = "listenerStorage.add"
	cmdListenerRemove = "listenerStorage.remove"
	cmdAddRules       = "declarativeWebRequest.addRules"
	cmdRemoveRules    = "declarativeWebRequest.removeRules"
	cmdGetRules       = "declarativeWebRequest.getRules"
	cmdCacheGet       = "cache.get"
	cmdCacheSet       = "cache.set"
	cmdCacheClone     = "cache.clone"
	cmdCacheClear     = "cache.clear"
	cmdLog            = "core.log"
)

const webRequestPrefix = "webRequest."

func (s *Switchboard) registerCommands() {
	s.commands[cmdListenerAdd] = &Command{Fn: s.addListener}
	s.commands[cmdListenerRemove] = &Command{Fn: s.removeListener}
	s.commands[cmdAddRules] = &Command{Fn: s.addRules}
	s.commands[cmdRemoveRules] = &Command{Fn: s.removeRules}
	s.commands[cmdGetRules] = &Command{Fn: s.getRules}
	s.commands[cmdCacheGet] = &Command{Fn: s.cacheGet}
	s.commands[cmdCacheSet] = &Command{Fn: s.cacheSet, Sync: true}
	s.commands[cmdCacheClone] = &Command{Fn: s.cacheClone, Sync: true}
	s.commands[cmdCacheClear] = &Command{Fn: s.cacheClear, Sync: true}
	s.commands[contextEvent] = &Command{Fn: s.contextEvent, Sync: true}
	s.commands[cmdLog] = &Command{Fn: s.log, Sync: true}
}

// addListener data is [event, {filter, extraInfo}, callbackId]. webRequest listeners
// also get a rule in the dispatcher carrying the listener's callback id.
func (s *Switchboard) addListener(call *Call, done Completion) {
	event := call.Arg(0).String()
	options := call.Arg(1)

	listener := &Listener{
		CallbackID:  call.Arg(2).String(),
		Event:       event,
		ExtensionID: call.Extension.ID,
		TabID:       call.Context.TabID,
		Frame:       call.Frame,
		ExtraInfo:   make([]string, 0),
	}
	if filter := options.Get("filter"); filter.IsObject() {
		listener.Filter = webrequest.ParseListenerFilter(filter)
	}
	for _, extra := range options.Get("extraInfo").Array() {
		listener.ExtraInfo = append(listener.ExtraInfo, extra.String())
	}

	if err := call.Extension.Listeners.Add(listener); err != nil {
		done(nil, err)
		return
	}

	if !strings.HasPrefix(event, webRequestPrefix) {
		done(listener.CallbackID, nil)
		return
	}

	props := kitt.Properties{
		ruleaction.PropInstanceType: event,
		ruleaction.PropExtraInfo:    listener.ExtraInfo,
	}
	action, ok := ruleaction.New(props, call.Extension.Listeners).(kitt.Blockable)
	if !ok {
		call.Extension.Listeners.Remove(listener.CallbackID)
		done(nil, errors.Errorf("unsupported event %s", event))
		return
	}
	action.SetListenerID(listener.CallbackID)

	if _, err := s.dispatcher.AddListenerRule(call.Extension.ID, event, listener.Filter, action); err != nil {
		call.Extension.Listeners.Remove(listener.CallbackID)
		done(nil, err)
		return
	}
	log.Debug().Str("extension_id", call.Extension.ID).Str("event", event).Str("callback_id", listener.CallbackID).Str("action", action.String()).Msg("listener added")
	done(listener.CallbackID, nil)
}

// removeListener data is [callbackId]
func (s *Switchboard) removeListener(call *Call, done Completion) {
	callbackID := call.Arg(0).String()
	if callbackID == "" {
		done(nil, ErrNoCallbackID)
		return
	}

	removed := s.dispatcher.RemoveForCallbackID(callbackID)
	if !call.Extension.Listeners.Remove(callbackID) {
		log.Debug().Str("callback_id", callbackID).Msg("removing unknown listener")
	}
	done(removed, nil)
}

// addRules data is [rules], rules without an id are assigned one. Every rule is
// validated before any is added.
func (s *Switchboard) addRules(call *Call, done Completion) {
	ext := call.Extension
	rules := make([]*webrequest.Rule, 0)
	records := make([]*kitt.RuleRecord, 0)
	added := make([]json.RawMessage, 0)

	for _, r := range call.Arg(0).Array() {
		raw := r.Raw
		if r.Get("id").String() == "" {
			var err error
			if raw, err = sjson.Set(raw, "id", uuid.NewV4().String()); err != nil {
				done(nil, errors.Wrap(err, "assigning rule id"))
				return
			}
		}

		rule, err := webrequest.ParseDeclarativeRule(ext.ID, []byte(raw), ext.Listeners)
		if err != nil {
			done(nil, err)
			return
		}
		rules = append(rules, rule)
		records = append(records, &kitt.RuleRecord{
			ExtensionID: ext.ID,
			ID:          rule.ID,
			Priority:    rule.Priority,
			Raw:         []byte(raw),
		})
		added = append(added, json.RawMessage(raw))
	}

	for i, rule := range rules {
		s.dispatcher.Add(rule)
		if s.store == nil {
			continue
		}
		if err := s.store.AddRule(records[i]); err != nil {
			log.Error().Err(err).Str("extension_id", ext.ID).Str("rule_id", rule.ID).Msg("failed to persist rule")
		}
	}
	done(added, nil)
}

// removeRules data is [ruleIds], null or missing ids remove every rule of the extension
func (s *Switchboard) removeRules(call *Call, done Completion) {
	ids := ruleIDs(call.Arg(0))
	removed := s.dispatcher.RemoveRules(call.Extension.ID, ids)
	if s.store != nil {
		if err := s.store.RemoveRules(call.Extension.ID, ids); err != nil {
			done(nil, err)
			return
		}
	}
	done(removed, nil)
}

// getRules data is [ruleIds], answered from the store when there is one
func (s *Switchboard) getRules(call *Call, done Completion) {
	ids := ruleIDs(call.Arg(0))
	wanted := func(id string) bool {
		if ids == nil {
			return true
		}
		for _, want := range ids {
			if want == id {
				return true
			}
		}
		return false
	}

	rules := make([]json.RawMessage, 0)
	if s.store == nil {
		for _, rule := range s.dispatcher.Rules(call.Extension.ID) {
			if wanted(rule.ID) {
				rules = append(rules, json.RawMessage(`{"id":`+quote(rule.ID)+`}`))
			}
		}
		done(rules, nil)
		return
	}

	records, err := s.store.Rules(call.Extension.ID)
	if err != nil {
		done(nil, err)
		return
	}
	for _, record := range records {
		if wanted(record.ID) {
			rules = append(rules, json.RawMessage(record.Raw))
		}
	}
	done(rules, nil)
}

// cacheGet data is [key], a miss completes with an error so lastError is set
func (s *Switchboard) cacheGet(call *Call, done Completion) {
	key := call.Arg(0).String()
	call.Extension.Cache.GetAsync(key, func(value interface{}, found bool) {
		if !found {
			done(nil, errors.Errorf("no value for %s", key))
			return
		}
		done(value, nil)
	})
}

// cacheSet data is [key, value]
func (s *Switchboard) cacheSet(call *Call, done Completion) {
	call.Extension.Cache.Set(call.Arg(0).String(), call.Arg(1).Value())
	done(nil, nil)
}

// cacheClone data is [fromKey, toKey]
func (s *Switchboard) cacheClone(call *Call, done Completion) {
	call.Extension.Cache.CloneValue(call.Arg(0).String(), call.Arg(1).String())
	done(nil, nil)
}

func (s *Switchboard) cacheClear(call *Call, done Completion) {
	call.Extension.Cache.Clear()
	done(nil, nil)
}

// contextEvent raw is {type, state}
func (s *Switchboard) contextEvent(call *Call, done Completion) {
	log.Info().
		Str("extension_id", call.Extension.ID).
		Str("frame_url", call.FrameURL).
		Str("type", call.Data.Get("type").String()).
		Str("state", call.Data.Get("state").Raw).
		Msg("js context event")
	done(nil, nil)
}

// log data is [level, message]
func (s *Switchboard) log(call *Call, done Completion) {
	level, err := zerolog.ParseLevel(call.Arg(0).String())
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	log.WithLevel(level).Str("extension_id", call.Extension.ID).Str("frame_url", call.FrameURL).Msg(call.Arg(1).String())
	done(nil, nil)
}

func ruleIDs(ids gjson.Result) []string {
	if !ids.IsArray() {
		return nil
	}
	ret := make([]string, 0)
	for _, id := range ids.Array() {
		ret = append(ret, id.String())
	}
	return ret
}

func quote(s string) string {
	data, _ := json.Marshal(s)
	return string(data)
}
