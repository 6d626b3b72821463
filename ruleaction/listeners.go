package ruleaction

import (
	"gitlab.com/kittcore/kitt"
)

// listener event names
const (
	EventBeforeRequest     = "webRequest.onBeforeRequest"
	EventBeforeSendHeaders = "webRequest.onBeforeSendHeaders"
	EventHeadersReceived   = "webRequest.onHeadersReceived"
	EventOnMessage         = "declarativeWebRequest.onMessage"
)

// OnBeforeSendHeaders calls a webRequest.onBeforeSendHeaders listener
type OnBeforeSendHeaders struct {
	blockable
}

// NewOnBeforeSendHeaders action
func NewOnBeforeSendHeaders(dispatcher kitt.EventDispatcher) *OnBeforeSendHeaders {
	return &OnBeforeSendHeaders{blockable: newBlockable(kitt.ActOnBeforeSendHeaders, dispatcher)}
}

// Apply reports the response headers known at this stage as requestHeaders, this
// matches what existing extensions were built against.
func (a *OnBeforeSendHeaders) Apply(details *kitt.WebRequestDetails, resp kitt.BlockingResponse) *kitt.Future {
	payload := details.ListenerPayload()
	if a.HasExtraProperty(ExtraRequestHeaders) {
		payload[ExtraRequestHeaders] = chromeHeaders(details.ResponseHeaders)
	}

	return a.dispatch(EventBeforeSendHeaders, payload, resp, func(resp *kitt.BlockingResponse, result *kitt.ListenerResponse) {
		resp.MergeCancel(result.Cancel)
		if result.RequestHeaders != nil {
			resp.RequestHeaders = kitt.HeadersToMap(result.RequestHeaders)
		}
	})
}

// OnHeadersReceived calls a webRequest.onHeadersReceived listener
type OnHeadersReceived struct {
	blockable
}

// NewOnHeadersReceived action
func NewOnHeadersReceived(dispatcher kitt.EventDispatcher) *OnHeadersReceived {
	return &OnHeadersReceived{blockable: newBlockable(kitt.ActOnHeadersReceived, dispatcher)}
}

// Apply overwrites redirectUrl and responseHeaders with whatever the listener returned
func (a *OnHeadersReceived) Apply(details *kitt.WebRequestDetails, resp kitt.BlockingResponse) *kitt.Future {
	payload := details.ListenerPayload()
	if details.ResponseHeaders != nil {
		payload[ExtraResponseHeaders] = chromeHeaders(details.ResponseHeaders)
	}

	return a.dispatch(EventHeadersReceived, payload, resp, func(resp *kitt.BlockingResponse, result *kitt.ListenerResponse) {
		resp.MergeCancel(result.Cancel)
		resp.RedirectURL = result.RedirectURL
		if result.ResponseHeaders != nil {
			resp.ResponseHeaders = kitt.HeadersToMap(result.ResponseHeaders)
		} else {
			resp.ResponseHeaders = nil
		}
	})
}

// OnBeforeRequest calls a webRequest.onBeforeRequest listener
type OnBeforeRequest struct {
	blockable
}

// NewOnBeforeRequest action
func NewOnBeforeRequest(dispatcher kitt.EventDispatcher) *OnBeforeRequest {
	return &OnBeforeRequest{blockable: newBlockable(kitt.ActOnBeforeRequest, dispatcher)}
}

// Apply may cancel or redirect the request
func (a *OnBeforeRequest) Apply(details *kitt.WebRequestDetails, resp kitt.BlockingResponse) *kitt.Future {
	payload := details.ListenerPayload()
	if a.HasExtraProperty(ExtraRequestBody) && details.Request != nil && len(details.Request.Body) > 0 {
		payload[ExtraRequestBody] = map[string]interface{}{
			"raw": []interface{}{map[string]interface{}{"bytes": string(details.Request.Body)}},
		}
	}

	return a.dispatch(EventBeforeRequest, payload, resp, func(resp *kitt.BlockingResponse, result *kitt.ListenerResponse) {
		resp.MergeCancel(result.Cancel)
		if result.RedirectURL != nil {
			resp.RedirectURL = result.RedirectURL
		}
	})
}
