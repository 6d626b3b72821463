package bridge

import (
	"encoding/json"

	"github.com/dop251/goja"
	"github.com/rs/zerolog/log"
	"gitlab.com/kittcore/kitt"
)

// attempts at a unique short id before falling back to a longer one
const maxIDAttempts = 8

// Callback invoked with a message from the native side. A nil result makes Invoke
// return the callback id, anything else is JSON encoded. Return json.RawMessage for
// results that are already encoded.
type Callback func(msg *kitt.Message) (interface{}, error)

// Subframe receives messages addressed to a frame other than the registry's own
type Subframe interface {
	Post(msg *kitt.Message) bool
}

type callbackEntry struct {
	fn         Callback
	persistent bool
}

// CallbackRegistry maps callback ids to closures for one frame. It must only be
// used from the goroutine owning the frame.
type CallbackRegistry struct {
	frameID   string
	callbacks map[string]*callbackEntry
	subframes map[string]Subframe
	lastError *kitt.BridgeError
}

// NewCallbackRegistry for the frame
func NewCallbackRegistry(frameID string) *CallbackRegistry {
	return &CallbackRegistry{
		frameID:   frameID,
		callbacks: make(map[string]*callbackEntry),
		subframes: make(map[string]Subframe),
	}
}

// FrameID the registry belongs to
func (r *CallbackRegistry) FrameID() string {
	return r.frameID
}

// AddCallback and return its new id
func (r *CallbackRegistry) AddCallback(fn Callback, persistent bool) string {
	id := makeID(callbackIDLength)
	for i := 0; i < maxIDAttempts && r.HasCallback(id); i++ {
		id = makeID(callbackIDLength)
	}
	for r.HasCallback(id) {
		id = makeID(tokenLength)
	}
	r.callbacks[id] = &callbackEntry{fn: fn, persistent: persistent}
	return id
}

// RemoveCallback by id, unknown ids are ignored
func (r *CallbackRegistry) RemoveCallback(callbackID string) {
	delete(r.callbacks, callbackID)
}

// HasCallback returns true if the id is registered
func (r *CallbackRegistry) HasCallback(callbackID string) bool {
	_, ok := r.callbacks[callbackID]
	return ok
}

// LastError of the message being handled, nil outside of an invocation
func (r *CallbackRegistry) LastError() *kitt.BridgeError {
	return r.lastError
}

// RegisterSubframe so messages for it can be forwarded
func (r *CallbackRegistry) RegisterSubframe(frameID string, frame Subframe) {
	r.subframes[frameID] = frame
}

// UnregisterSubframe once it unloads
func (r *CallbackRegistry) UnregisterSubframe(frameID string) {
	delete(r.subframes, frameID)
}

// Invoke the callback named in the message context. Returns the callback id when the
// callback returned nothing or the message was forwarded to a subframe, the encoded
// result otherwise. Failures are returned as an ERRORSTACKTRACE tagged string.
func (r *CallbackRegistry) Invoke(msg *kitt.Message) (ret string) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Str("frame_id", r.frameID).Msg("callback panicked")
			ret = kitt.ErrorTag("%v", rec)
		}
	}()

	if msg == nil || msg.Context == nil || msg.Context.CallbackID == "" {
		log.Warn().Str("frame_id", r.frameID).Msg("dropping message without callback id")
		return kitt.ErrorTag("no callback id in context parameter")
	}
	callbackID := msg.Context.CallbackID

	if msg.Context.FrameID != "" && msg.Context.FrameID != r.frameID {
		subframe, ok := r.subframes[msg.Context.FrameID]
		if !ok {
			log.Warn().Str("frame_id", r.frameID).Str("target_frame", msg.Context.FrameID).Msg("dropping message for unknown frame")
			return kitt.ErrorTag("no frame window")
		}
		if !subframe.Post(msg) {
			return kitt.ErrorTag("no frame window")
		}
		return callbackID
	}

	return r.invokeInCurrentFrame(msg, callbackID)
}

func (r *CallbackRegistry) invokeInCurrentFrame(msg *kitt.Message, callbackID string) string {
	entry, ok := r.callbacks[callbackID]
	if !ok {
		return kitt.ErrorTag("callback id %s undefined in context", callbackID)
	}

	result, err := r.call(entry, msg, callbackID)
	if err != nil {
		return toBridgeError(err).Tag()
	}

	if result == nil {
		return callbackID
	}

	data, err := json.Marshal(result)
	if err != nil {
		return kitt.ErrorTag("failed to encode callback result: %s", err)
	}
	return string(data)
}

func (r *CallbackRegistry) call(entry *callbackEntry, msg *kitt.Message, callbackID string) (interface{}, error) {
	r.lastError = msg.Context.LastError
	defer func() {
		r.lastError = nil
		if !entry.persistent {
			delete(r.callbacks, callbackID)
		}
	}()
	return entry.fn(msg)
}

// toBridgeError keeps the JS stack when the error is a goja exception
func toBridgeError(err error) *kitt.BridgeError {
	switch e := err.(type) {
	case *goja.Exception:
		bridgeErr := &kitt.BridgeError{Message: e.Error(), Stack: e.String()}
		if v := e.Value(); v != nil {
			if obj, ok := v.(*goja.Object); ok {
				if m := obj.Get("message"); m != nil && !goja.IsUndefined(m) {
					bridgeErr.Message = m.String()
				}
				if s := obj.Get("stack"); s != nil && !goja.IsUndefined(s) {
					bridgeErr.Stack = s.String()
				}
			}
		}
		return bridgeErr
	case *kitt.BridgeError:
		return e
	}
	return &kitt.BridgeError{Message: err.Error()}
}
