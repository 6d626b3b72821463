package bridge

import (
	"context"
	"encoding/json"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/require"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gitlab.com/kittcore/cache"
	"gitlab.com/kittcore/kitt"
)

// ErrFrameClosed returned when posting to a frame that has unloaded
var ErrFrameClosed = errors.New("frame is closed")

// Frame owns a JS runtime and its callback registry. Everything touching the runtime
// runs on the frame's own goroutine, other goroutines post closures to its inbox.
type Frame struct {
	ID          string
	ExtensionID string
	TabID       *int64
	URL         string

	parent   *Frame
	vm       *goja.Runtime
	registry *CallbackRegistry
	caller   *NativeCaller
	inbox    *cache.SerialQueue
}

// NewFrame creates the runtime and starts the frame. A frame with a parent registers
// itself with the main frame of the tab, which forwards messages to it.
func NewFrame(extensionID string, tabID *int64, url string, parent *Frame) *Frame {
	f := &Frame{
		ID:          makeID(frameIDLength),
		ExtensionID: extensionID,
		TabID:       tabID,
		URL:         url,
		parent:      parent,
		vm:          goja.New(),
		inbox:       cache.NewSerialQueue(),
	}
	f.registry = NewCallbackRegistry(f.ID)
	f.caller = NewNativeCaller(f)

	f.Do(func(vm *goja.Runtime) {
		new(require.Registry).Enable(vm)
		console.Enable(vm)
	})

	if parent != nil {
		root := parent.Root()
		root.Do(func(vm *goja.Runtime) {
			root.registry.RegisterSubframe(f.ID, f)
		})
	}
	return f
}

// Do posts fn to the frame, returns false if the frame is closed
func (f *Frame) Do(fn func(vm *goja.Runtime)) bool {
	return f.inbox.Enqueue(cache.PriorityNormal, func() {
		fn(f.vm)
	})
}

// DoSync runs fn on the frame and waits for it. Must not be called from the frame itself.
func (f *Frame) DoSync(ctx context.Context, fn func(vm *goja.Runtime) error) error {
	errCh := make(chan error, 1)
	ok := f.Do(func(vm *goja.Runtime) {
		defer func() {
			if rec := recover(); rec != nil {
				errCh <- errors.Errorf("frame %s panicked: %v", f.ID, rec)
			}
		}()
		errCh <- fn(vm)
	})
	if !ok {
		return ErrFrameClosed
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunScript in the frame
func (f *Frame) RunScript(ctx context.Context, name, src string) error {
	return f.DoSync(ctx, func(vm *goja.Runtime) error {
		_, err := vm.RunScript(name, src)
		return errors.Wrapf(err, "running %s", name)
	})
}

// Deliver a message from the native side, done receives the registry's return value
func (f *Frame) Deliver(msg *kitt.Message, done func(ret string)) bool {
	return f.Do(func(vm *goja.Runtime) {
		ret := f.registry.Invoke(msg)
		if done != nil {
			done(ret)
		}
	})
}

// Post implements Subframe, the result of a forwarded message is only logged
func (f *Frame) Post(msg *kitt.Message) bool {
	return f.Deliver(msg, func(ret string) {
		if bridgeErr := kitt.ParseErrorTag(ret); bridgeErr != nil {
			log.Warn().Str("frame_id", f.ID).Str("error", bridgeErr.Message).Msg("forwarded message failed")
		}
	})
}

// Root frame of the tab, messages from native are delivered here
func (f *Frame) Root() *Frame {
	root := f
	for root.parent != nil {
		root = root.parent
	}
	return root
}

// Registry of the frame, only valid on the frame goroutine
func (f *Frame) Registry() *CallbackRegistry {
	return f.registry
}

// Caller of the frame, only valid on the frame goroutine
func (f *Frame) Caller() *NativeCaller {
	return f.caller
}

// Close unregisters from the main frame and stops the frame
func (f *Frame) Close() {
	if f.parent != nil {
		id := f.ID
		root := f.Root()
		root.Do(func(vm *goja.Runtime) {
			root.registry.UnregisterSubframe(id)
		})
	}
	f.inbox.Close()
}

// jsCallback wraps a JS function so it can be stored in the registry
func (f *Frame) jsCallback(fn goja.Callable) Callback {
	return func(msg *kitt.Message) (interface{}, error) {
		arg, err := f.toJSMessage(msg)
		if err != nil {
			return nil, err
		}
		ret, err := fn(goja.Undefined(), arg)
		if err != nil {
			return nil, err
		}
		if ret == nil || goja.IsUndefined(ret) || goja.IsNull(ret) {
			return nil, nil
		}
		return ret.Export(), nil
	}
}

// toJSMessage converts a message to the {context, data} object JS callbacks expect
func (f *Frame) toJSMessage(msg *kitt.Message) (goja.Value, error) {
	data, err := json.Marshal(map[string]interface{}{
		"context": msg.Context,
		"data":    msg.Data,
	})
	if err != nil {
		return nil, errors.Wrap(err, "encoding message for js")
	}
	return f.parseJSON(string(data))
}

func (f *Frame) parseJSON(data string) (goja.Value, error) {
	parse, ok := goja.AssertFunction(f.vm.Get("JSON").ToObject(f.vm).Get("parse"))
	if !ok {
		return nil, errors.New("JSON.parse is not available")
	}
	return parse(goja.Undefined(), f.vm.ToValue(data))
}
