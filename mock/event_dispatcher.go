package mock

import (
	"sync"

	"gitlab.com/kittcore/kitt"
)

// DispatchedEvent recorded by the mock dispatcher
type DispatchedEvent struct {
	Event   string
	Payload map[string]interface{}
}

type EventDispatcher struct {
	DispatchFn     func(event string, payload map[string]interface{})
	DispatchCalled bool

	HandleBlockingResponseFn     func(listenerID string, payload map[string]interface{}, completion kitt.ListenerCompletion)
	HandleBlockingResponseCalled bool

	HasListenerFn     func(listenerID string) bool
	HasListenerCalled bool

	lock       *sync.Mutex
	Dispatched []*DispatchedEvent
	Payloads   []map[string]interface{} // payloads handed to blocking listeners
}

func (e *EventDispatcher) Dispatch(event string, payload map[string]interface{}) {
	e.DispatchCalled = true
	e.DispatchFn(event, payload)
}

func (e *EventDispatcher) HandleBlockingResponse(listenerID string, payload map[string]interface{}, completion kitt.ListenerCompletion) {
	e.HandleBlockingResponseCalled = true
	e.HandleBlockingResponseFn(listenerID, payload, completion)
}

func (e *EventDispatcher) HasListener(listenerID string) bool {
	e.HasListenerCalled = true
	return e.HasListenerFn(listenerID)
}

// Events dispatched so far
func (e *EventDispatcher) Events() []*DispatchedEvent {
	e.lock.Lock()
	defer e.lock.Unlock()
	return append([]*DispatchedEvent{}, e.Dispatched...)
}

// MakeMockEventDispatcher every listener exists and answers synchronously with result
func MakeMockEventDispatcher(result *kitt.ListenerResponse) *EventDispatcher {
	e := &EventDispatcher{lock: &sync.Mutex{}}
	e.Dispatched = make([]*DispatchedEvent, 0)
	e.Payloads = make([]map[string]interface{}, 0)

	e.DispatchFn = func(event string, payload map[string]interface{}) {
		e.lock.Lock()
		defer e.lock.Unlock()
		e.Dispatched = append(e.Dispatched, &DispatchedEvent{Event: event, Payload: payload})
	}

	e.HandleBlockingResponseFn = func(listenerID string, payload map[string]interface{}, completion kitt.ListenerCompletion) {
		e.lock.Lock()
		e.Payloads = append(e.Payloads, payload)
		e.lock.Unlock()
		completion(result, nil)
	}

	e.HasListenerFn = func(listenerID string) bool {
		return true
	}
	return e
}

// MakeMockAsyncEventDispatcher answers blocking calls from another goroutine
func MakeMockAsyncEventDispatcher(result *kitt.ListenerResponse) *EventDispatcher {
	e := MakeMockEventDispatcher(result)
	e.HandleBlockingResponseFn = func(listenerID string, payload map[string]interface{}, completion kitt.ListenerCompletion) {
		e.lock.Lock()
		e.Payloads = append(e.Payloads, payload)
		e.lock.Unlock()
		go completion(result, nil)
	}
	return e
}
