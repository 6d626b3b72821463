package ruleaction

import "gitlab.com/kittcore/kitt"

// CancelRequest declarativeWebRequest.CancelRequest
type CancelRequest struct {
	dispatcher kitt.EventDispatcher
}

// NewCancelRequest action
func NewCancelRequest(dispatcher kitt.EventDispatcher) *CancelRequest {
	return &CancelRequest{dispatcher: dispatcher}
}

// Type of action
func (a *CancelRequest) Type() kitt.ActionType {
	return kitt.ActCancelRequest
}

// Apply cancels the request
func (a *CancelRequest) Apply(details *kitt.WebRequestDetails, resp kitt.BlockingResponse) *kitt.Future {
	resp.MergeCancel(true)
	return kitt.ResolvedFuture(resp)
}

func (a *CancelRequest) String() string {
	return "noblock " + a.Type().String()
}
