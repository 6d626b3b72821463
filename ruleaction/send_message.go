package ruleaction

import (
	"gitlab.com/kittcore/kitt"
)

// SendMessageToExtension declarativeWebRequest.SendMessageToExtension
type SendMessageToExtension struct {
	dispatcher kitt.EventDispatcher
	message    string
}

// NewSendMessageToExtension action
func NewSendMessageToExtension(dispatcher kitt.EventDispatcher) *SendMessageToExtension {
	return &SendMessageToExtension{dispatcher: dispatcher}
}

// Type of action
func (a *SendMessageToExtension) Type() kitt.ActionType {
	return kitt.ActSendMessageToExtension
}

// Configure reads message
func (a *SendMessageToExtension) Configure(props kitt.Properties) {
	if message, ok := props.String(PropMessage); ok {
		a.message = message
	}
}

// Apply fires declarativeWebRequest.onMessage, the response is never modified
func (a *SendMessageToExtension) Apply(details *kitt.WebRequestDetails, resp kitt.BlockingResponse) *kitt.Future {
	payload := details.ListenerPayload()
	payload[PropMessage] = a.message
	a.dispatcher.Dispatch(EventOnMessage, payload)
	return kitt.ResolvedFuture(resp)
}

func (a *SendMessageToExtension) String() string {
	return "noblock " + a.Type().String()
}
