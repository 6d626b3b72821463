package bridge

import (
	"encoding/json"

	"github.com/dop251/goja"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/sjson"
	"gitlab.com/kittcore/kitt"
)

// ErrNoTransport returned when the frame has neither transport installed
var ErrNoTransport = errors.New("failed to bridge the message to the native side")

// names of the host transports in the frame's global scope
const (
	entryPointName = "KittEntryPoint"
	contextEvent   = "JSContextEvent"
)

var messageHandlerPath = []string{"webkit", "messageHandlers", "switchboard", "postMessage"}

// NativeCaller sends calls from a frame to the native switchboard through whichever
// transport the host installed. Must only be used from the frame goroutine.
type NativeCaller struct {
	frame *Frame
}

// NewNativeCaller for the frame
func NewNativeCaller(frame *Frame) *NativeCaller {
	return &NativeCaller{frame: frame}
}

// CallNativeWithRawData sends data and raw to the native command name. When callback is
// given it is registered behind a token check and its id is returned.
func (c *NativeCaller) CallNativeWithRawData(name string, data, raw interface{}, msgCtx *kitt.MessageContext, callback Callback, persistent bool) (string, error) {
	msgCtx = c.context(msgCtx)

	callbackID := ""
	if callback != nil {
		token := makeID(tokenLength)
		msgCtx.Token = token
		callbackID = c.frame.registry.AddCallback(tokenChecked(token, callback), persistent)
		msgCtx.CallbackID = callbackID
	}

	message, err := encodeMessage(msgCtx, data)
	if err != nil {
		c.frame.registry.RemoveCallback(callbackID)
		return "", err
	}

	if err := c.post(name, message, raw); err != nil {
		c.frame.registry.RemoveCallback(callbackID)
		return "", err
	}
	return callbackID, nil
}

// CallNative without raw data
func (c *NativeCaller) CallNative(name string, data interface{}, callback Callback) (string, error) {
	return c.CallNativeWithRawData(name, data, nil, nil, callback, false)
}

// CallSync calls the native command through the entry point and returns its answer
func (c *NativeCaller) CallSync(name string, data interface{}) (string, error) {
	fn, _, ok := lookupFunction(c.frame.vm, entryPointName)
	if !ok {
		return "", ErrNoTransport
	}

	message, err := encodeMessage(c.context(nil), data)
	if err != nil {
		return "", err
	}
	message, err = sjson.Set(message, "frameURL", c.frame.URL)
	if err != nil {
		return "", err
	}
	arg, err := c.frame.parseJSON(message)
	if err != nil {
		return "", err
	}

	ret, err := fn(goja.Undefined(), c.frame.vm.ToValue(name), arg)
	if err != nil {
		return "", errors.Wrapf(err, "calling %s", name)
	}
	return ret.String(), nil
}

// SendEvent reports a JS context event, the state travels as raw data
func (c *NativeCaller) SendEvent(eventType string, state interface{}) error {
	raw := map[string]interface{}{"type": eventType, "state": state}
	_, err := c.CallNativeWithRawData(contextEvent, nil, raw, nil, nil, false)
	return err
}

// AddCallback to the frame's registry
func (c *NativeCaller) AddCallback(callback Callback, persistent bool) string {
	return c.frame.registry.AddCallback(callback, persistent)
}

// RemoveCallback is the only way to remove a persistent callback
func (c *NativeCaller) RemoveCallback(callbackID string, done func()) {
	c.frame.registry.RemoveCallback(callbackID)
	if done != nil {
		done()
	}
}

// RemoveListener unregisters the listener on the native side, then drops its callback
func (c *NativeCaller) RemoveListener(callbackID string, done func()) error {
	_, err := c.CallNative(cmdListenerRemove, []interface{}{callbackID}, func(msg *kitt.Message) (interface{}, error) {
		c.RemoveCallback(callbackID, done)
		return nil, nil
	})
	return err
}

// LastError while a native message is being handled
func (c *NativeCaller) LastError() *kitt.BridgeError {
	return c.frame.registry.LastError()
}

func (c *NativeCaller) context(msgCtx *kitt.MessageContext) *kitt.MessageContext {
	if msgCtx == nil {
		msgCtx = &kitt.MessageContext{}
	}
	if c.frame.ExtensionID != "" {
		msgCtx.ExtensionID = c.frame.ExtensionID
	}
	if c.frame.TabID != nil {
		msgCtx.TabID = c.frame.TabID
	}
	msgCtx.FrameID = c.frame.ID
	return msgCtx
}

// post through the message handler if present, the entry point otherwise
func (c *NativeCaller) post(name, message string, raw interface{}) error {
	vm := c.frame.vm
	if fn, this, ok := lookupFunction(vm, messageHandlerPath...); ok {
		payload := map[string]interface{}{
			"name":     name,
			"message":  message,
			"raw":      raw,
			"frameURL": c.frame.URL,
		}
		_, err := fn(this, vm.ToValue(payload))
		return errors.Wrapf(err, "posting %s", name)
	}

	if fn, _, ok := lookupFunction(vm, entryPointName); ok {
		payload := map[string]interface{}{
			"message":  message,
			"raw":      raw,
			"frameURL": c.frame.URL,
		}
		_, err := fn(goja.Undefined(), vm.ToValue(name), vm.ToValue(payload))
		return errors.Wrapf(err, "posting %s", name)
	}

	log.Error().Str("frame_id", c.frame.ID).Str("command", name).Msg("no native transport in frame")
	return ErrNoTransport
}

// tokenChecked only calls callback if the reply carries the token that was sent
func tokenChecked(token string, callback Callback) Callback {
	return func(msg *kitt.Message) (interface{}, error) {
		if msg.Context == nil || msg.Context.Token != token {
			log.Warn().Msg("dropping callback delivery with mismatched token")
			return nil, nil
		}
		return callback(msg)
	}
}

// encodeMessage builds the {"c": context, "d": data} envelope
func encodeMessage(msgCtx *kitt.MessageContext, data interface{}) (string, error) {
	ctxJSON, err := json.Marshal(msgCtx)
	if err != nil {
		return "", errors.Wrap(err, "encoding message context")
	}
	message, err := sjson.SetRaw(`{}`, "c", string(ctxJSON))
	if err != nil {
		return "", err
	}
	return sjson.Set(message, "d", data)
}

// lookupFunction walks path from the global scope, returning the function and the
// object holding it
func lookupFunction(vm *goja.Runtime, path ...string) (goja.Callable, goja.Value, bool) {
	v := vm.Get(path[0])
	this := goja.Value(goja.Undefined())
	for _, name := range path[1:] {
		if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
			return nil, nil, false
		}
		obj, ok := v.(*goja.Object)
		if !ok {
			return nil, nil, false
		}
		this = obj
		v = obj.Get(name)
	}
	if v == nil {
		return nil, nil, false
	}
	fn, ok := goja.AssertFunction(v)
	return fn, this, ok
}
