package bridge

import (
	"encoding/json"

	"github.com/dop251/goja"
	"github.com/gobuffalo/packr/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gitlab.com/kittcore/kitt"
)

const (
	preludeName = "prelude.js"
	nativeName  = "__kittNative"
)

var jsBox = packr.New("kittcore-js", "./js")

// install the configured host transport, the native object the prelude is built on,
// then the prelude itself
func (s *Switchboard) install(frame *Frame, vm *goja.Runtime) error {
	switch s.cfg.Transport {
	case kitt.TransportEntryPoint:
		vm.Set(entryPointName, s.entryPoint(frame, vm))
	default:
		if err := s.installMessageHandler(frame, vm); err != nil {
			return errors.Wrap(err, "installing message handler")
		}
	}

	vm.Set(nativeName, newNativeObject(frame, vm))

	prelude, err := jsBox.FindString(preludeName)
	if err != nil {
		return errors.Wrap(err, "loading prelude")
	}
	if _, err := vm.RunScript(preludeName, prelude); err != nil {
		return errors.Wrap(err, "running prelude")
	}
	return nil
}

// installMessageHandler as webkit.messageHandlers.switchboard.postMessage
func (s *Switchboard) installMessageHandler(frame *Frame, vm *goja.Runtime) error {
	handler := vm.NewObject()
	if err := handler.Set("postMessage", func(call goja.FunctionCall) goja.Value {
		payload, ok := call.Argument(0).Export().(map[string]interface{})
		if !ok {
			log.Warn().Str("frame_id", frame.ID).Msg("message handler called without a payload object")
			return goja.Undefined()
		}
		name, _ := payload["name"].(string)
		message, _ := payload["message"].(string)
		frameURL, _ := payload["frameURL"].(string)
		if !s.Post(frame, name, message, payload["raw"], frameURL) {
			log.Warn().Str("frame_id", frame.ID).Str("command", name).Msg("switchboard is closed")
		}
		return goja.Undefined()
	}); err != nil {
		return err
	}

	handlers := vm.NewObject()
	if err := handlers.Set("switchboard", handler); err != nil {
		return err
	}
	webkit := vm.NewObject()
	if err := webkit.Set("messageHandlers", handlers); err != nil {
		return err
	}
	vm.Set("webkit", webkit)
	return nil
}

// entryPoint is KittEntryPoint(name, payload). A payload carrying a message is queued,
// any other payload is a synchronous {c, d, frameURL} call answered immediately.
func (s *Switchboard) entryPoint(frame *Frame, vm *goja.Runtime) func(call goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		name := call.Argument(0).String()
		payload, ok := call.Argument(1).Export().(map[string]interface{})
		if !ok {
			return vm.ToValue(kitt.ErrorTag("entry point called without a payload object"))
		}
		frameURL, _ := payload["frameURL"].(string)

		if message, async := payload["message"].(string); async {
			s.Post(frame, name, message, payload["raw"], frameURL)
			return goja.Undefined()
		}

		data, err := json.Marshal(payload)
		if err != nil {
			return vm.ToValue(kitt.ErrorTag("%s", err))
		}
		return vm.ToValue(s.HandleSync(frame, name, string(data), frameURL))
	}
}

// newNativeObject exposes the frame's NativeCaller to the prelude
func newNativeObject(frame *Frame, vm *goja.Runtime) *goja.Object {
	caller := frame.Caller()
	native := vm.NewObject()
	throw := func(err error) {
		panic(vm.NewGoError(err))
	}
	callback := func(v goja.Value) Callback {
		if fn, ok := goja.AssertFunction(v); ok {
			return frame.jsCallback(fn)
		}
		return nil
	}

	native.Set("frameId", frame.ID)
	native.Set("extensionId", frame.ExtensionID)
	native.Set("frameURL", frame.URL)

	// call(name, data, callback, persistent)
	native.Set("call", func(call goja.FunctionCall) goja.Value {
		id, err := caller.CallNativeWithRawData(call.Argument(0).String(), call.Argument(1).Export(), nil, nil,
			callback(call.Argument(2)), call.Argument(3).ToBoolean())
		if err != nil {
			throw(err)
		}
		return vm.ToValue(id)
	})

	// callSync(name, data) returns the parsed answer
	native.Set("callSync", func(call goja.FunctionCall) goja.Value {
		ret, err := caller.CallSync(call.Argument(0).String(), call.Argument(1).Export())
		if err != nil {
			throw(err)
		}
		if bridgeErr := kitt.ParseErrorTag(ret); bridgeErr != nil {
			throw(bridgeErr)
		}
		if ret == "" {
			return goja.Undefined()
		}
		value, err := frame.parseJSON(ret)
		if err != nil {
			return vm.ToValue(ret)
		}
		return value
	})

	native.Set("addCallback", func(call goja.FunctionCall) goja.Value {
		fn := callback(call.Argument(0))
		if fn == nil {
			throw(errors.New("addCallback needs a function"))
		}
		return vm.ToValue(caller.AddCallback(fn, call.Argument(1).ToBoolean()))
	})

	native.Set("removeCallback", func(call goja.FunctionCall) goja.Value {
		caller.RemoveCallback(call.Argument(0).String(), nil)
		return goja.Undefined()
	})

	// removeListener(callbackId, done)
	native.Set("removeListener", func(call goja.FunctionCall) goja.Value {
		var done func()
		if fn, ok := goja.AssertFunction(call.Argument(1)); ok {
			done = func() {
				if _, err := fn(goja.Undefined()); err != nil {
					log.Warn().Err(err).Str("frame_id", frame.ID).Msg("removeListener callback failed")
				}
			}
		}
		if err := caller.RemoveListener(call.Argument(0).String(), done); err != nil {
			throw(err)
		}
		return goja.Undefined()
	})

	native.Set("lastError", func(call goja.FunctionCall) goja.Value {
		bridgeErr := caller.LastError()
		if bridgeErr == nil {
			return goja.Null()
		}
		obj := vm.NewObject()
		obj.Set("message", bridgeErr.Message)
		if bridgeErr.Stack != "" {
			obj.Set("stack", bridgeErr.Stack)
		}
		return obj
	})

	native.Set("sendEvent", func(call goja.FunctionCall) goja.Value {
		if err := caller.SendEvent(call.Argument(0).String(), call.Argument(1).Export()); err != nil {
			throw(err)
		}
		return goja.Undefined()
	})
	return native
}
