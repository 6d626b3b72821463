package ruleaction

import (
	"github.com/rs/zerolog/log"
	"gitlab.com/kittcore/kitt"
)

// property bag keys and extraInfo flags
const (
	PropInstanceType = "instanceType"
	PropExtraInfo    = "extraInfo"
	PropRedirectURL  = "redirectUrl"
	PropMessage      = "message"

	ExtraBlocking        = "blocking"
	ExtraRequestHeaders  = "requestHeaders"
	ExtraResponseHeaders = "responseHeaders"
	ExtraRequestBody     = "requestBody"
)

// mergeFn writes a listener result into the accumulator
type mergeFn func(resp *kitt.BlockingResponse, result *kitt.ListenerResponse)

// blockable is shared by every action which may wait on a JS listener
type blockable struct {
	actionType kitt.ActionType
	dispatcher kitt.EventDispatcher
	extraInfo  []string
	listenerID string
}

func newBlockable(actionType kitt.ActionType, dispatcher kitt.EventDispatcher) blockable {
	return blockable{
		actionType: actionType,
		dispatcher: dispatcher,
		extraInfo:  make([]string, 0),
	}
}

// Type of action
func (b *blockable) Type() kitt.ActionType {
	return b.actionType
}

// Configure reads the extraInfo flags
func (b *blockable) Configure(props kitt.Properties) {
	if extra := props.Strings(PropExtraInfo); extra != nil {
		b.extraInfo = extra
	}
}

// ExtraProperties as given in extraInfoSpec
func (b *blockable) ExtraProperties() []string {
	return b.extraInfo
}

// HasExtraProperty exact match
func (b *blockable) HasExtraProperty(name string) bool {
	for _, extra := range b.extraInfo {
		if extra == name {
			return true
		}
	}
	return false
}

// IsBlocking if the listener result must be awaited
func (b *blockable) IsBlocking() bool {
	return b.HasExtraProperty(ExtraBlocking)
}

// ListenerID the callback id of the listener this action calls
func (b *blockable) ListenerID() string {
	return b.listenerID
}

// SetListenerID must be called before the action is added to a rule
func (b *blockable) SetListenerID(callbackID string) {
	b.listenerID = callbackID
}

func (b *blockable) String() string {
	if b.IsBlocking() {
		return "blocking " + b.actionType.String()
	}
	return "noblock " + b.actionType.String()
}

func (b *blockable) listenerGone() bool {
	return b.listenerID == "" || !b.dispatcher.HasListener(b.listenerID)
}

// dispatch the payload and fold the listener's answer into resp. Non blocking actions
// resolve immediately, a gone listener or a failed call leaves resp untouched.
func (b *blockable) dispatch(event string, payload map[string]interface{}, resp kitt.BlockingResponse, merge mergeFn) *kitt.Future {
	if b.listenerGone() {
		log.Warn().Str("listener_id", b.listenerID).Str("action", b.String()).Msg("trying to call listener already removed")
		return kitt.ResolvedFuture(resp)
	}

	if !b.IsBlocking() {
		b.dispatcher.Dispatch(event, payload)
		return kitt.ResolvedFuture(resp)
	}

	f := kitt.NewFuture()
	b.dispatcher.HandleBlockingResponse(b.listenerID, payload, func(result *kitt.ListenerResponse, err error) {
		if err != nil {
			log.Error().Err(err).Str("listener_id", b.listenerID).Str("action", b.String()).Msg("listener call failed")
			f.Resolve(resp)
			return
		}
		if result != nil {
			merge(&resp, result)
		}
		f.Resolve(resp)
	})
	return f
}
