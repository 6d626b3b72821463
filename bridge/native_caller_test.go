package bridge_test

import (
	"context"
	"testing"
	"time"

	"github.com/dop251/goja"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"gitlab.com/kittcore/bridge"
	"gitlab.com/kittcore/kitt"
)

type posted struct {
	name    string
	payload map[string]interface{}
}

func newTestFrame(t *testing.T) *bridge.Frame {
	tabID := int64(7)
	f := bridge.NewFrame("ext", &tabID, "https://example.com/index.html", nil)
	t.Cleanup(f.Close)
	return f
}

func onFrame(t *testing.T, f *bridge.Frame, fn func(vm *goja.Runtime) error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*2)
	defer cancel()
	if err := f.DoSync(ctx, fn); err != nil {
		t.Fatalf("error running on frame: %s\n", err)
	}
}

func installEntryPoint(vm *goja.Runtime, calls *[]posted, ret string) {
	vm.Set("KittEntryPoint", func(name string, payload map[string]interface{}) string {
		*calls = append(*calls, posted{name: name, payload: payload})
		return ret
	})
}

func installMessageHandler(vm *goja.Runtime, calls *[]posted) {
	handler := vm.NewObject()
	handler.Set("postMessage", func(payload map[string]interface{}) {
		name, _ := payload["name"].(string)
		*calls = append(*calls, posted{name: name, payload: payload})
	})
	handlers := vm.NewObject()
	handlers.Set("switchboard", handler)
	webkit := vm.NewObject()
	webkit.Set("messageHandlers", handlers)
	vm.Set("webkit", webkit)
}

func TestCallNativeNoTransport(t *testing.T) {
	f := newTestFrame(t)
	var err error
	onFrame(t, f, func(vm *goja.Runtime) error {
		_, err = f.Caller().CallNative("cache.get", []interface{}{"k"}, func(msg *kitt.Message) (interface{}, error) {
			return nil, nil
		})
		return nil
	})
	if !errors.Is(err, bridge.ErrNoTransport) {
		t.Fatalf("expected ErrNoTransport got %v\n", err)
	}
}

func TestCallNativeEntryPoint(t *testing.T) {
	f := newTestFrame(t)
	calls := make([]posted, 0)
	onFrame(t, f, func(vm *goja.Runtime) error {
		installEntryPoint(vm, &calls, "")
		_, err := f.Caller().CallNativeWithRawData("cache.set", []interface{}{"k", "v"}, map[string]interface{}{"extra": 1}, nil, nil, false)
		return err
	})

	if len(calls) != 1 || calls[0].name != "cache.set" {
		t.Fatalf("expected one entry point call got %v\n", calls)
	}
	payload := calls[0].payload
	if payload["frameURL"] != "https://example.com/index.html" {
		t.Fatalf("expected frameURL in payload got %v\n", payload["frameURL"])
	}
	if payload["raw"] == nil {
		t.Fatalf("expected raw data in payload")
	}

	message := gjson.Parse(payload["message"].(string))
	if message.Get("c.extensionId").String() != "ext" || message.Get("c.tabId").Int() != 7 {
		t.Fatalf("expected extension and tab in context got %s\n", message.Get("c").Raw)
	}
	if message.Get("c.frameId").String() != f.ID {
		t.Fatalf("expected frame id %s got %s\n", f.ID, message.Get("c.frameId").String())
	}
	if message.Get("c.callbackId").Exists() {
		t.Fatalf("no callback id expected without a callback")
	}
	if message.Get("d.1").String() != "v" {
		t.Fatalf("expected data in envelope got %s\n", message.Raw)
	}
}

func TestCallNativePrefersMessageHandler(t *testing.T) {
	f := newTestFrame(t)
	entry := make([]posted, 0)
	handler := make([]posted, 0)
	onFrame(t, f, func(vm *goja.Runtime) error {
		installEntryPoint(vm, &entry, "")
		installMessageHandler(vm, &handler)
		_, err := f.Caller().CallNative("cache.clear", nil, nil)
		return err
	})

	if len(entry) != 0 {
		t.Fatalf("entry point must not be used when the message handler exists")
	}
	if len(handler) != 1 || handler[0].name != "cache.clear" {
		t.Fatalf("expected message handler call got %v\n", handler)
	}
}

func TestCallbackTokenMismatch(t *testing.T) {
	f := newTestFrame(t)
	calls := make([]posted, 0)
	ran := 0
	var callbackID string
	onFrame(t, f, func(vm *goja.Runtime) error {
		installMessageHandler(vm, &calls)
		var err error
		callbackID, err = f.Caller().CallNativeWithRawData("cache.get", []interface{}{"k"}, nil, nil, func(msg *kitt.Message) (interface{}, error) {
			ran++
			return nil, nil
		}, true)
		return err
	})

	message := gjson.Parse(calls[0].payload["message"].(string))
	token := message.Get("c.token").String()
	if len(token) != 10 {
		t.Fatalf("expected 10 char token got %s\n", token)
	}
	if message.Get("c.callbackId").String() != callbackID {
		t.Fatalf("expected callback id %s in context\n", callbackID)
	}

	onFrame(t, f, func(vm *goja.Runtime) error {
		f.Registry().Invoke(&kitt.Message{Context: &kitt.MessageContext{CallbackID: callbackID, Token: "wrongtoken"}})
		return nil
	})
	if ran != 0 {
		t.Fatalf("callback must not run with a mismatched token")
	}

	onFrame(t, f, func(vm *goja.Runtime) error {
		f.Registry().Invoke(&kitt.Message{Context: &kitt.MessageContext{CallbackID: callbackID, Token: token}})
		return nil
	})
	if ran != 1 {
		t.Fatalf("callback must run with the matching token")
	}
}

func TestCallSync(t *testing.T) {
	f := newTestFrame(t)
	calls := make([]posted, 0)
	var ret string
	onFrame(t, f, func(vm *goja.Runtime) error {
		installEntryPoint(vm, &calls, `{"ok":true}`)
		var err error
		ret, err = f.Caller().CallSync("cache.set", []interface{}{"k", "v"})
		return err
	})

	if ret != `{"ok":true}` {
		t.Fatalf("expected entry point answer got %s\n", ret)
	}
	payload := calls[0].payload
	if _, ok := payload["message"]; ok {
		t.Fatalf("sync calls pass the envelope directly")
	}
	if payload["frameURL"] != "https://example.com/index.html" || payload["c"] == nil || payload["d"] == nil {
		t.Fatalf("expected {c, d, frameURL} payload got %v\n", payload)
	}
}

func TestSendEvent(t *testing.T) {
	f := newTestFrame(t)
	calls := make([]posted, 0)
	onFrame(t, f, func(vm *goja.Runtime) error {
		installMessageHandler(vm, &calls)
		return f.Caller().SendEvent("DOMContentLoaded", map[string]interface{}{"ready": true})
	})

	if len(calls) != 1 || calls[0].name != "JSContextEvent" {
		t.Fatalf("expected JSContextEvent got %v\n", calls)
	}
	raw, ok := calls[0].payload["raw"].(map[string]interface{})
	if !ok || raw["type"] != "DOMContentLoaded" {
		t.Fatalf("expected event type in raw data got %v\n", calls[0].payload["raw"])
	}
}

func TestRemoveListener(t *testing.T) {
	f := newTestFrame(t)
	calls := make([]posted, 0)
	removed := false
	var listenerID string
	onFrame(t, f, func(vm *goja.Runtime) error {
		installMessageHandler(vm, &calls)
		listenerID = f.Caller().AddCallback(func(msg *kitt.Message) (interface{}, error) {
			return nil, nil
		}, true)
		return f.Caller().RemoveListener(listenerID, func() {
			removed = true
		})
	})

	if len(calls) != 1 || calls[0].name != "listenerStorage.remove" {
		t.Fatalf("expected listenerStorage.remove call got %v\n", calls)
	}
	message := gjson.Parse(calls[0].payload["message"].(string))
	if message.Get("d.0").String() != listenerID {
		t.Fatalf("expected listener id in data got %s\n", message.Get("d").Raw)
	}

	onFrame(t, f, func(vm *goja.Runtime) error {
		if !f.Registry().HasCallback(listenerID) {
			return errors.New("listener callback must stay until native confirms")
		}
		f.Registry().Invoke(&kitt.Message{Context: &kitt.MessageContext{
			CallbackID: message.Get("c.callbackId").String(),
			Token:      message.Get("c.token").String(),
		}})
		if f.Registry().HasCallback(listenerID) {
			return errors.New("listener callback must be removed after the reply")
		}
		return nil
	})
	if !removed {
		t.Fatalf("expected done to be called")
	}
}
