package kitt

// ActionType of a rule action
type ActionType int8

const (
	ActUnknown ActionType = iota
	ActCancelRequest
	ActRedirectRequest
	ActRedirectToEmptyDocument
	ActSendMessageToExtension
	ActOnBeforeSendHeaders
	ActOnHeadersReceived
	ActWebNavigation
	ActOnBeforeRequest
)

// ActionTypeMap for debug output
var ActionTypeMap = map[ActionType]string{
	ActUnknown:                 "Unknown",
	ActCancelRequest:           "CancelRequest",
	ActRedirectRequest:         "RedirectRequest",
	ActRedirectToEmptyDocument: "RedirectToEmptyDocument",
	ActSendMessageToExtension:  "SendMessageToExtension",
	ActOnBeforeSendHeaders:     "OnBeforeSendHeaders",
	ActOnHeadersReceived:       "OnHeadersReceived",
	ActWebNavigation:           "WebNavigation",
	ActOnBeforeRequest:         "OnBeforeRequest",
}

// instanceTypes maps the extension declared instanceType to the action
var instanceTypes = map[string]ActionType{
	"declarativeWebRequest.CancelRequest":           ActCancelRequest,
	"declarativeWebRequest.RedirectRequest":         ActRedirectRequest,
	"declarativeWebRequest.RedirectToEmptyDocument": ActRedirectToEmptyDocument,
	"declarativeWebRequest.SendMessageToExtension":  ActSendMessageToExtension,
	"webRequest.onBeforeSendHeaders":                ActOnBeforeSendHeaders,
	"webRequest.onHeadersReceived":                  ActOnHeadersReceived,
	"webNavigation.onBeforeNavigate":                ActWebNavigation,
	"webNavigation.onCommitted":                     ActWebNavigation,
	"webNavigation.onCompleted":                     ActWebNavigation,
	"webNavigation.onCreatedNavigationTarget":       ActWebNavigation,
	"webRequest.onBeforeRequest":                    ActOnBeforeRequest,
}

// ParseActionType from an instanceType name
func ParseActionType(instanceType string) (ActionType, bool) {
	act, ok := instanceTypes[instanceType]
	return act, ok
}

func (a ActionType) String() string {
	return ActionTypeMap[a]
}

// Properties is the property bag of a declarative rule action
type Properties map[string]interface{}

// String property or empty
func (p Properties) String(name string) (string, bool) {
	v, ok := p[name].(string)
	return v, ok
}

// Strings property, accepts []string or []interface{} of strings
func (p Properties) Strings(name string) []string {
	switch v := p[name].(type) {
	case []string:
		return v
	case []interface{}:
		ret := make([]string, 0, len(v))
		for _, s := range v {
			if str, ok := s.(string); ok {
				ret = append(ret, str)
			}
		}
		return ret
	}
	return nil
}

// RuleAction applies a decision to a request, taking the current accumulator and
// completing the returned future with the updated one.
type RuleAction interface {
	Type() ActionType
	Apply(details *WebRequestDetails, resp BlockingResponse) *Future
	String() string
}

// Configurable actions read their settings from the declarative property bag
type Configurable interface {
	Configure(props Properties)
}

// Blockable actions may wait on a JS listener
type Blockable interface {
	RuleAction
	ExtraProperties() []string
	HasExtraProperty(name string) bool
	IsBlocking() bool
	ListenerID() string
	SetListenerID(callbackID string)
}
