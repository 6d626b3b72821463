package bridge_test

import (
	"testing"
	"time"

	"github.com/dop251/goja"
	"github.com/pkg/errors"
	"gitlab.com/kittcore/bridge"
	"gitlab.com/kittcore/kitt"
)

type listenerResult struct {
	result *kitt.ListenerResponse
	err    error
}

func addListener(t *testing.T, f *bridge.Frame, listeners *bridge.Listeners, event string, fn bridge.Callback) string {
	var id string
	onFrame(t, f, func(vm *goja.Runtime) error {
		id = f.Caller().AddCallback(fn, true)
		return nil
	})
	if err := listeners.Add(&bridge.Listener{CallbackID: id, Event: event, ExtensionID: f.ExtensionID, Frame: f}); err != nil {
		t.Fatalf("error adding listener: %s\n", err)
	}
	return id
}

func blockingResult(t *testing.T, listeners *bridge.Listeners, id string) listenerResult {
	ch := make(chan listenerResult, 1)
	listeners.HandleBlockingResponse(id, map[string]interface{}{"url": "https://example.com/"}, func(result *kitt.ListenerResponse, err error) {
		ch <- listenerResult{result, err}
	})
	select {
	case r := <-ch:
		return r
	case <-time.After(time.Second * 2):
		t.Fatalf("timed out waiting for listener")
	}
	return listenerResult{}
}

func TestBlockingListenerResult(t *testing.T) {
	f := newTestFrame(t)
	listeners := bridge.NewListeners("ext")

	var payload interface{}
	id := addListener(t, f, listeners, "webRequest.onBeforeSendHeaders", func(msg *kitt.Message) (interface{}, error) {
		payload = msg.Data
		return map[string]interface{}{
			"cancel":      false,
			"redirectUrl": "https://example.com/clean",
			"requestHeaders": []interface{}{
				map[string]interface{}{"name": "X-Test", "value": "1"},
			},
		}, nil
	})

	r := blockingResult(t, listeners, id)
	if r.err != nil {
		t.Fatalf("error from listener: %s\n", r.err)
	}
	if payload == nil {
		t.Fatalf("listener did not receive the payload")
	}
	if r.result.RedirectURL == nil || *r.result.RedirectURL != "https://example.com/clean" {
		t.Fatalf("expected redirect url got %v\n", r.result.RedirectURL)
	}
	if len(r.result.RequestHeaders) != 1 || r.result.RequestHeaders[0].Name != "X-Test" {
		t.Fatalf("expected request headers got %v\n", r.result.RequestHeaders)
	}
	if r.result.ResponseHeaders != nil {
		t.Fatalf("response headers were not returned")
	}
}

func TestBlockingListenerErrors(t *testing.T) {
	f := newTestFrame(t)
	listeners := bridge.NewListeners("ext")

	noRetval := addListener(t, f, listeners, "webRequest.onBeforeRequest", func(msg *kitt.Message) (interface{}, error) {
		return nil, nil
	})
	if r := blockingResult(t, listeners, noRetval); !errors.Is(r.err, bridge.ErrNoRetval) {
		t.Fatalf("expected ErrNoRetval got %v\n", r.err)
	}

	mismatch := addListener(t, f, listeners, "webRequest.onBeforeRequest", func(msg *kitt.Message) (interface{}, error) {
		return []interface{}{true}, nil
	})
	if r := blockingResult(t, listeners, mismatch); !errors.Is(r.err, bridge.ErrResultMismatch) {
		t.Fatalf("expected ErrResultMismatch got %v\n", r.err)
	}

	encodedString := addListener(t, f, listeners, "webRequest.onBeforeRequest", func(msg *kitt.Message) (interface{}, error) {
		return `{"cancel":true}`, nil
	})
	if r := blockingResult(t, listeners, encodedString); !errors.Is(r.err, bridge.ErrResultMismatch) {
		t.Fatalf("a string result must not be read as an object got %v %v\n", r.result, r.err)
	}

	failing := addListener(t, f, listeners, "webRequest.onBeforeRequest", func(msg *kitt.Message) (interface{}, error) {
		return nil, errors.New("listener threw")
	})
	if r := blockingResult(t, listeners, failing); r.err == nil || r.err.Error() != "listener threw" {
		t.Fatalf("expected listener error got %v\n", r.err)
	}

	if r := blockingResult(t, listeners, "gone1"); !errors.Is(r.err, bridge.ErrListenerGone) {
		t.Fatalf("expected ErrListenerGone got %v\n", r.err)
	}

	listeners.Remove(noRetval)
	if listeners.HasListener(noRetval) {
		t.Fatalf("removed listener must be gone")
	}
	if r := blockingResult(t, listeners, noRetval); !errors.Is(r.err, bridge.ErrListenerGone) {
		t.Fatalf("expected ErrListenerGone after remove got %v\n", r.err)
	}
}

func TestListenerFrameClosed(t *testing.T) {
	tabID := int64(1)
	f := bridge.NewFrame("ext", &tabID, "https://example.com/", nil)
	listeners := bridge.NewListeners("ext")
	id := addListener(t, f, listeners, "webRequest.onBeforeRequest", func(msg *kitt.Message) (interface{}, error) {
		return map[string]interface{}{"cancel": true}, nil
	})
	f.Close()

	if r := blockingResult(t, listeners, id); !errors.Is(r.err, bridge.ErrListenerGone) {
		t.Fatalf("expected ErrListenerGone for closed frame got %v\n", r.err)
	}
}

func TestDispatchToEventListeners(t *testing.T) {
	f := newTestFrame(t)
	listeners := bridge.NewListeners("ext")

	received := make(chan string, 4)
	for i := 0; i < 2; i++ {
		addListener(t, f, listeners, "declarativeWebRequest.onMessage", func(msg *kitt.Message) (interface{}, error) {
			received <- msg.Context.Event
			return nil, nil
		})
	}
	addListener(t, f, listeners, "webRequest.onBeforeRequest", func(msg *kitt.Message) (interface{}, error) {
		received <- msg.Context.Event
		return nil, nil
	})

	listeners.Dispatch("declarativeWebRequest.onMessage", map[string]interface{}{"message": "hi"})
	for i := 0; i < 2; i++ {
		select {
		case event := <-received:
			if event != "declarativeWebRequest.onMessage" {
				t.Fatalf("unexpected event %s\n", event)
			}
		case <-time.After(time.Second * 2):
			t.Fatalf("timed out waiting for dispatch")
		}
	}

	onFrame(t, f, func(vm *goja.Runtime) error {
		return nil
	})
	if len(received) != 0 {
		t.Fatalf("listeners of other events must not be called")
	}

	if got := len(listeners.ForEvent("declarativeWebRequest.onMessage")); got != 2 {
		t.Fatalf("expected 2 onMessage listeners got %d\n", got)
	}
	if removed := listeners.RemoveForFrame(f.ID); len(removed) != 3 {
		t.Fatalf("expected all listeners of the frame removed got %d\n", len(removed))
	}
}
