package bridge

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"gitlab.com/kittcore/kitt"
	"gitlab.com/kittcore/webrequest"
)

var (
	// ErrNoCallbackID returned for a listener registration without a callback
	ErrNoCallbackID = errors.New("no callback id given")
	// ErrListenerGone returned when the listener was removed before it could be called
	ErrListenerGone = errors.New("listener is gone")
	// ErrResultMismatch returned when a listener answered with something other than an object
	ErrResultMismatch = errors.New("event result did not match")
	// ErrNoRetval returned when a blocking listener returned nothing
	ErrNoRetval = errors.New("callback must have a retval")
)

// Listener is a JS event listener registered through listenerStorage.add
type Listener struct {
	CallbackID  string
	Event       string
	ExtensionID string
	TabID       *int64
	Frame       *Frame
	Filter      *webrequest.ListenerFilter
	ExtraInfo   []string
}

// Listeners of one extension, delivers events and blocking calls to their frames
type Listeners struct {
	extensionID string
	lock        *sync.RWMutex
	listeners   map[string]*Listener
	order       []string
}

// NewListeners storage for the extension
func NewListeners(extensionID string) *Listeners {
	return &Listeners{
		extensionID: extensionID,
		lock:        &sync.RWMutex{},
		listeners:   make(map[string]*Listener),
		order:       make([]string, 0),
	}
}

// Add a listener, replacing one with the same callback id
func (l *Listeners) Add(listener *Listener) error {
	if listener.CallbackID == "" {
		return ErrNoCallbackID
	}

	l.lock.Lock()
	defer l.lock.Unlock()
	if _, exists := l.listeners[listener.CallbackID]; !exists {
		l.order = append(l.order, listener.CallbackID)
	}
	l.listeners[listener.CallbackID] = listener
	return nil
}

// Remove the listener, returns false if it was not registered
func (l *Listeners) Remove(callbackID string) bool {
	l.lock.Lock()
	defer l.lock.Unlock()

	if _, exists := l.listeners[callbackID]; !exists {
		return false
	}
	delete(l.listeners, callbackID)
	for i, id := range l.order {
		if id == callbackID {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	return true
}

// RemoveForFrame drops every listener registered from the frame and returns their ids
func (l *Listeners) RemoveForFrame(frameID string) []string {
	removed := make([]string, 0)
	for _, listener := range l.All() {
		if listener.Frame != nil && listener.Frame.ID == frameID {
			l.Remove(listener.CallbackID)
			removed = append(removed, listener.CallbackID)
		}
	}
	return removed
}

// Get a listener by callback id
func (l *Listeners) Get(callbackID string) (*Listener, bool) {
	l.lock.RLock()
	defer l.lock.RUnlock()
	listener, ok := l.listeners[callbackID]
	return listener, ok
}

// All listeners in registration order
func (l *Listeners) All() []*Listener {
	l.lock.RLock()
	defer l.lock.RUnlock()

	all := make([]*Listener, 0, len(l.order))
	for _, id := range l.order {
		all = append(all, l.listeners[id])
	}
	return all
}

// ForEvent returns the listeners of event in registration order
func (l *Listeners) ForEvent(event string) []*Listener {
	matched := make([]*Listener, 0)
	for _, listener := range l.All() {
		if listener.Event == event {
			matched = append(matched, listener)
		}
	}
	return matched
}

// HasListener returns false once the listener was removed
func (l *Listeners) HasListener(callbackID string) bool {
	_, ok := l.Get(callbackID)
	return ok
}

// Dispatch the payload to every listener of the event without waiting for answers
func (l *Listeners) Dispatch(event string, payload map[string]interface{}) {
	for _, listener := range l.ForEvent(event) {
		callbackID := listener.CallbackID
		ok := l.deliver(listener, event, payload, func(ret string) {
			if bridgeErr := kitt.ParseErrorTag(ret); bridgeErr != nil {
				log.Warn().Str("event", event).Str("callback_id", callbackID).Str("error", bridgeErr.Message).Msg("listener failed")
			}
		})
		if !ok {
			log.Warn().Str("event", event).Str("callback_id", callbackID).Msg("listener frame is closed")
		}
	}
}

// HandleBlockingResponse calls a single listener and parses what it returned
func (l *Listeners) HandleBlockingResponse(listenerID string, payload map[string]interface{}, completion kitt.ListenerCompletion) {
	listener, ok := l.Get(listenerID)
	if !ok {
		completion(nil, ErrListenerGone)
		return
	}

	delivered := l.deliver(listener, listener.Event, payload, func(ret string) {
		result, err := parseListenerResult(listenerID, ret)
		completion(result, err)
	})
	if !delivered {
		completion(nil, errors.Wrap(ErrListenerGone, "listener frame is closed"))
	}
}

func (l *Listeners) deliver(listener *Listener, event string, payload map[string]interface{}, done func(ret string)) bool {
	if listener.Frame == nil {
		return false
	}
	msg := &kitt.Message{
		Context: &kitt.MessageContext{
			ExtensionID: l.extensionID,
			TabID:       listener.TabID,
			FrameID:     listener.Frame.ID,
			CallbackID:  listener.CallbackID,
			Event:       event,
		},
		Data: payload,
	}
	return listener.Frame.Root().Deliver(msg, done)
}

// parseListenerResult of a blocking listener into a response fragment
func parseListenerResult(callbackID, ret string) (*kitt.ListenerResponse, error) {
	if bridgeErr := kitt.ParseErrorTag(ret); bridgeErr != nil {
		return nil, bridgeErr
	}
	if ret == callbackID {
		return nil, ErrNoRetval
	}
	if !gjson.Valid(ret) {
		return nil, ErrResultMismatch
	}

	parsed := gjson.Parse(ret)
	if !parsed.IsObject() {
		return nil, ErrResultMismatch
	}

	result := &kitt.ListenerResponse{
		Cancel: parsed.Get("cancel").Bool(),
	}
	if redirect := parsed.Get("redirectUrl"); redirect.Exists() && redirect.Type != gjson.Null {
		result.RedirectURL = kitt.StringPtr(redirect.String())
	}
	result.RequestHeaders = parseHeaders(parsed.Get("requestHeaders"))
	result.ResponseHeaders = parseHeaders(parsed.Get("responseHeaders"))
	return result, nil
}

func parseHeaders(headers gjson.Result) []kitt.HeaderEntry {
	if !headers.IsArray() {
		return nil
	}
	entries := make([]kitt.HeaderEntry, 0)
	for _, h := range headers.Array() {
		entries = append(entries, kitt.HeaderEntry{Name: h.Get("name").String(), Value: h.Get("value").String()})
	}
	return entries
}
