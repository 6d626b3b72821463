package ruleaction

import (
	"gitlab.com/kittcore/kitt"
)

// empty document served by RedirectToEmptyDocument
const (
	emptyDocumentMIME = "text/plain"
	emptyDocumentData = " "
)

// RedirectRequest declarativeWebRequest.RedirectRequest
type RedirectRequest struct {
	dispatcher  kitt.EventDispatcher
	redirectURL *string
}

// NewRedirectRequest action, without configuration it clears any earlier redirect
func NewRedirectRequest(dispatcher kitt.EventDispatcher) *RedirectRequest {
	return &RedirectRequest{dispatcher: dispatcher}
}

// Type of action
func (a *RedirectRequest) Type() kitt.ActionType {
	return kitt.ActRedirectRequest
}

// Configure reads redirectUrl
func (a *RedirectRequest) Configure(props kitt.Properties) {
	if redirectURL, ok := props.String(PropRedirectURL); ok {
		a.redirectURL = kitt.StringPtr(redirectURL)
	}
}

// RedirectURL configured for this action
func (a *RedirectRequest) RedirectURL() *string {
	return a.redirectURL
}

// Apply sets the redirect unconditionally
func (a *RedirectRequest) Apply(details *kitt.WebRequestDetails, resp kitt.BlockingResponse) *kitt.Future {
	resp.RedirectURL = a.redirectURL
	return kitt.ResolvedFuture(resp)
}

func (a *RedirectRequest) String() string {
	return "noblock " + a.Type().String()
}

// RedirectToEmptyDocument declarativeWebRequest.RedirectToEmptyDocument
type RedirectToEmptyDocument struct {
	dispatcher kitt.EventDispatcher
}

// NewRedirectToEmptyDocument action
func NewRedirectToEmptyDocument(dispatcher kitt.EventDispatcher) *RedirectToEmptyDocument {
	return &RedirectToEmptyDocument{dispatcher: dispatcher}
}

// Type of action
func (a *RedirectToEmptyDocument) Type() kitt.ActionType {
	return kitt.ActRedirectToEmptyDocument
}

// Apply substitutes a single space text/plain document
func (a *RedirectToEmptyDocument) Apply(details *kitt.WebRequestDetails, resp kitt.BlockingResponse) *kitt.Future {
	resp.FakeResponse = &kitt.FakeResponse{
		URL:            details.URL(),
		MIMEType:       emptyDocumentMIME,
		ExpectedLength: len(emptyDocumentData),
	}
	resp.FakeData = []byte(emptyDocumentData)
	return kitt.ResolvedFuture(resp)
}

func (a *RedirectToEmptyDocument) String() string {
	return "noblock " + a.Type().String()
}
