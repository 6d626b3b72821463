package kitt

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ErrorStackTracePrefix tags bridge return values that carry an error
const ErrorStackTracePrefix = "ERRORSTACKTRACE"

// BridgeError as exposed to JS through lastError
type BridgeError struct {
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

func (e *BridgeError) Error() string {
	return e.Message
}

// MessageContext is the "c" part of a bridge message
type MessageContext struct {
	ExtensionID string       `json:"extensionId,omitempty"`
	TabID       *int64       `json:"tabId,omitempty"`
	FrameID     string       `json:"frameId,omitempty"`
	CallbackID  string       `json:"callbackId,omitempty"`
	Token       string       `json:"token,omitempty"`
	Event       string       `json:"event,omitempty"`
	LastError   *BridgeError `json:"lastError,omitempty"`
}

// Message between native and JS, "c" context and "d" data
type Message struct {
	Context *MessageContext `json:"c"`
	Data    interface{}     `json:"d"`
}

// Tag formats the error for return across the bridge
func (e *BridgeError) Tag() string {
	data, err := json.Marshal(e)
	if err != nil {
		return ErrorStackTracePrefix + e.Message
	}
	return ErrorStackTracePrefix + string(data)
}

// ErrorTag formats an error message for return across the bridge
func ErrorTag(format string, args ...interface{}) string {
	return (&BridgeError{Message: fmt.Sprintf(format, args...)}).Tag()
}

// IsErrorTag returns true if a bridge return value is an error marker
func IsErrorTag(ret string) bool {
	return strings.HasPrefix(ret, ErrorStackTracePrefix)
}

// ParseErrorTag returns the error carried by a tagged return value, nil if ret is not
// tagged. Details which are not an encoded error become the message.
func ParseErrorTag(ret string) *BridgeError {
	if !IsErrorTag(ret) {
		return nil
	}
	details := ret[len(ErrorStackTracePrefix):]
	bridgeErr := &BridgeError{}
	if err := json.Unmarshal([]byte(details), bridgeErr); err != nil || bridgeErr.Message == "" {
		return &BridgeError{Message: details}
	}
	return bridgeErr
}
