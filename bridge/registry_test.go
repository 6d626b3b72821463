package bridge_test

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/dop251/goja"
	"github.com/pkg/errors"
	"gitlab.com/kittcore/bridge"
	"gitlab.com/kittcore/kitt"
)

type subframe struct {
	posted []*kitt.Message
	closed bool
}

func (s *subframe) Post(msg *kitt.Message) bool {
	if s.closed {
		return false
	}
	s.posted = append(s.posted, msg)
	return true
}

func message(frameID, callbackID string, data interface{}) *kitt.Message {
	return &kitt.Message{
		Context: &kitt.MessageContext{FrameID: frameID, CallbackID: callbackID},
		Data:    data,
	}
}

func TestRegistryInvoke(t *testing.T) {
	r := bridge.NewCallbackRegistry("frame1")

	var got interface{}
	id := r.AddCallback(func(msg *kitt.Message) (interface{}, error) {
		got = msg.Data
		return nil, nil
	}, false)
	if len(id) != 5 {
		t.Fatalf("expected 5 char callback id got %s\n", id)
	}

	if ret := r.Invoke(message("frame1", id, "hello")); ret != id {
		t.Fatalf("expected callback id as return got %s\n", ret)
	}
	if got != "hello" {
		t.Fatalf("callback did not receive data: %v\n", got)
	}

	if r.HasCallback(id) {
		t.Fatalf("non persistent callback must be removed after invocation")
	}
	ret := r.Invoke(message("frame1", id, "again"))
	if bridgeErr := kitt.ParseErrorTag(ret); bridgeErr == nil || bridgeErr.Message != "callback id "+id+" undefined in context" {
		t.Fatalf("expected undefined callback error got %s\n", ret)
	}
}

func TestRegistryPersistent(t *testing.T) {
	r := bridge.NewCallbackRegistry("frame1")
	calls := 0
	id := r.AddCallback(func(msg *kitt.Message) (interface{}, error) {
		calls++
		return map[string]interface{}{"cancel": true}, nil
	}, true)

	for i := 0; i < 3; i++ {
		if ret := r.Invoke(message("", id, nil)); ret != `{"cancel":true}` {
			t.Fatalf("expected encoded result got %s\n", ret)
		}
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls got %d\n", calls)
	}

	r.RemoveCallback(id)
	r.RemoveCallback(id)
	if r.HasCallback(id) {
		t.Fatalf("persistent callback must be removed explicitly")
	}
}

func TestRegistryResults(t *testing.T) {
	r := bridge.NewCallbackRegistry("frame1")

	var tests = []struct {
		result   interface{}
		expected string
	}{
		{"plain", `"plain"`},
		{"ERRORSTACKTRACEspoofed", `"ERRORSTACKTRACEspoofed"`},
		{`{"cancel":true}`, `"{\"cancel\":true}"`},
		{json.RawMessage(`{"cancel":true}`), `{"cancel":true}`},
		{map[string]interface{}{"a": 1}, `{"a":1}`},
	}
	for _, tt := range tests {
		result := tt.result
		id := r.AddCallback(func(msg *kitt.Message) (interface{}, error) {
			return result, nil
		}, false)
		ret := r.Invoke(message("", id, nil))
		if ret != tt.expected {
			t.Fatalf("expected %s got %s\n", tt.expected, ret)
		}
		if kitt.IsErrorTag(ret) {
			t.Fatalf("successful result %s must not look like an error\n", ret)
		}
	}

	var ownID string
	ownID = r.AddCallback(func(msg *kitt.Message) (interface{}, error) {
		return ownID, nil
	}, false)
	if ret := r.Invoke(message("", ownID, nil)); ret == ownID {
		t.Fatalf("returning the callback id must not read as no result")
	}

	failing := r.AddCallback(func(msg *kitt.Message) (interface{}, error) {
		return nil, errors.New("boom")
	}, false)
	if bridgeErr := kitt.ParseErrorTag(r.Invoke(message("", failing, nil))); bridgeErr == nil || bridgeErr.Message != "boom" {
		t.Fatalf("expected boom error got %v\n", bridgeErr)
	}

	panics := r.AddCallback(func(msg *kitt.Message) (interface{}, error) {
		panic("exploded")
	}, false)
	if bridgeErr := kitt.ParseErrorTag(r.Invoke(message("", panics, nil))); bridgeErr == nil || bridgeErr.Message != "exploded" {
		t.Fatalf("expected panic to be tagged got %v\n", bridgeErr)
	}
}

func TestRegistryNoCallbackID(t *testing.T) {
	r := bridge.NewCallbackRegistry("frame1")
	for _, msg := range []*kitt.Message{nil, {}, message("frame1", "", nil)} {
		bridgeErr := kitt.ParseErrorTag(r.Invoke(msg))
		if bridgeErr == nil || bridgeErr.Message != "no callback id in context parameter" {
			t.Fatalf("expected missing callback id error got %v\n", bridgeErr)
		}
	}
}

func TestRegistryLastErrorScoped(t *testing.T) {
	r := bridge.NewCallbackRegistry("frame1")

	var during *kitt.BridgeError
	id := r.AddCallback(func(msg *kitt.Message) (interface{}, error) {
		during = r.LastError()
		return nil, nil
	}, false)

	msg := message("", id, nil)
	msg.Context.LastError = &kitt.BridgeError{Message: "rule rejected"}
	r.Invoke(msg)

	if during == nil || during.Message != "rule rejected" {
		t.Fatalf("expected lastError during invocation got %v\n", during)
	}
	if r.LastError() != nil {
		t.Fatalf("lastError must be cleared after invocation")
	}
}

func TestRegistrySubframes(t *testing.T) {
	r := bridge.NewCallbackRegistry("root")
	child := &subframe{}
	r.RegisterSubframe("child", child)

	if ret := r.Invoke(message("child", "abcde", "data")); ret != "abcde" {
		t.Fatalf("expected forwarded message to return the callback id got %s\n", ret)
	}
	if len(child.posted) != 1 || child.posted[0].Data != "data" {
		t.Fatalf("message was not forwarded to subframe")
	}

	ret := r.Invoke(message("unknown", "abcde", nil))
	if bridgeErr := kitt.ParseErrorTag(ret); bridgeErr == nil || bridgeErr.Message != "no frame window" {
		t.Fatalf("expected no frame window got %s\n", ret)
	}

	child.closed = true
	if !kitt.IsErrorTag(r.Invoke(message("child", "abcde", nil))) {
		t.Fatalf("expected closed subframe to be an error")
	}

	r.UnregisterSubframe("child")
	if !kitt.IsErrorTag(r.Invoke(message("child", "abcde", nil))) {
		t.Fatalf("expected unregistered subframe to be an error")
	}
}

func TestRegistryJSException(t *testing.T) {
	vm := goja.New()
	v, err := vm.RunString(`(function (msg) { throw new Error("listener failed: " + msg); })`)
	if err != nil {
		t.Fatalf("error compiling function: %s\n", err)
	}
	fn, ok := goja.AssertFunction(v)
	if !ok {
		t.Fatalf("expected a function")
	}

	r := bridge.NewCallbackRegistry("frame1")
	id := r.AddCallback(func(msg *kitt.Message) (interface{}, error) {
		return fn(goja.Undefined(), vm.ToValue(msg.Data))
	}, false)

	bridgeErr := kitt.ParseErrorTag(r.Invoke(message("", id, "x")))
	if bridgeErr == nil {
		t.Fatalf("expected tagged error")
	}
	if bridgeErr.Message != "listener failed: x" {
		t.Fatalf("expected js error message got %s\n", bridgeErr.Message)
	}
	if !strings.Contains(bridgeErr.Stack, "listener failed") {
		t.Fatalf("expected js stack got %s\n", bridgeErr.Stack)
	}
}

func TestNestedFrameReceivesMessages(t *testing.T) {
	root := newTestFrame(t)
	child := bridge.NewFrame("ext", root.TabID, "https://example.com/child.html", root)
	defer child.Close()
	grandchild := bridge.NewFrame("ext", root.TabID, "https://example.com/grandchild.html", child)
	defer grandchild.Close()

	invoked := make(chan interface{}, 1)
	var id string
	onFrame(t, grandchild, func(vm *goja.Runtime) error {
		id = grandchild.Registry().AddCallback(func(msg *kitt.Message) (interface{}, error) {
			invoked <- msg.Data
			return nil, nil
		}, true)
		return nil
	})

	rets := make(chan string, 1)
	root.Deliver(message(grandchild.ID, id, "hello"), func(ret string) {
		rets <- ret
	})
	if ret := <-rets; ret != id {
		t.Fatalf("expected message to be forwarded got %s\n", ret)
	}

	select {
	case data := <-invoked:
		if data != "hello" {
			t.Fatalf("expected hello got %v\n", data)
		}
	case <-time.After(time.Second * 2):
		t.Fatalf("grandchild callback was not invoked")
	}

	grandchild.Close()
	root.Deliver(message(grandchild.ID, id, "again"), func(ret string) {
		rets <- ret
	})
	if bridgeErr := kitt.ParseErrorTag(<-rets); bridgeErr == nil || bridgeErr.Message != "no frame window" {
		t.Fatalf("expected closed grandchild to be unregistered got %v\n", bridgeErr)
	}
}
