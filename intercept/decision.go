package intercept

import (
	"context"
	"net/http"
	"strconv"

	"gitlab.com/kittcore/kitt"
	"gitlab.com/kittcore/webrequest"
)

// Stager folds the rules of one request stage into a response
type Stager interface {
	OnBeforeRequest(ctx context.Context, details *kitt.WebRequestDetails) kitt.BlockingResponse
	OnBeforeSendHeaders(ctx context.Context, headers, cookies map[string]string, details *kitt.WebRequestDetails) kitt.BlockingResponse
	OnHeadersReceived(ctx context.Context, headers map[string]string, details *kitt.WebRequestDetails) kitt.BlockingResponse
}

// Verdict on a paused request
type Verdict int8

const (
	VerdictContinue Verdict = iota
	VerdictFail
	VerdictFulfill
)

// VerdictMap for debug output
var VerdictMap = map[Verdict]string{
	VerdictContinue: "continue",
	VerdictFail:     "fail",
	VerdictFulfill:  "fulfill",
}

func (v Verdict) String() string {
	return VerdictMap[v]
}

// Decision taken for a paused request. Continuing with nil Headers leaves the request
// untouched, a fulfilled response without Body keeps the original body.
type Decision struct {
	Verdict    Verdict
	StatusCode int
	Headers    map[string]string
	Body       []byte
	KeepBody   bool
}

// DecideRequest runs onBeforeRequest and, unless that already settled the request,
// onBeforeSendHeaders
func DecideRequest(ctx context.Context, stager Stager, details *kitt.WebRequestDetails, headers, cookies map[string]string) *Decision {
	resp := stager.OnBeforeRequest(ctx, details)
	if decision := settled(resp); decision != nil {
		return decision
	}

	resp = stager.OnBeforeSendHeaders(ctx, headers, cookies, details)
	if decision := settled(resp); decision != nil {
		return decision
	}

	if resp.RequestHeaders == nil {
		return &Decision{Verdict: VerdictContinue}
	}
	return &Decision{Verdict: VerdictContinue, Headers: withRestricted(resp.RequestHeaders, headers)}
}

// DecideResponse runs onHeadersReceived
func DecideResponse(ctx context.Context, stager Stager, details *kitt.WebRequestDetails, statusCode int, headers map[string]string) *Decision {
	resp := stager.OnHeadersReceived(ctx, headers, details)
	if decision := settled(resp); decision != nil {
		return decision
	}

	if resp.ResponseHeaders == nil {
		return &Decision{Verdict: VerdictContinue}
	}
	return &Decision{
		Verdict:    VerdictFulfill,
		StatusCode: statusCode,
		Headers:    resp.ResponseHeaders,
		KeepBody:   true,
	}
}

// settled returns the decision for a cancelled, substituted or redirected request
func settled(resp kitt.BlockingResponse) *Decision {
	switch {
	case resp.IsCancelled():
		return &Decision{Verdict: VerdictFail}
	case resp.FakeResponse != nil:
		return &Decision{
			Verdict:    VerdictFulfill,
			StatusCode: http.StatusOK,
			Headers: map[string]string{
				"Content-Type":   resp.FakeResponse.MIMEType,
				"Content-Length": strconv.Itoa(len(resp.FakeData)),
			},
			Body: resp.FakeData,
		}
	case resp.IsRedirect():
		return &Decision{
			Verdict:    VerdictFulfill,
			StatusCode: http.StatusTemporaryRedirect,
			Headers:    map[string]string{"Location": *resp.RedirectURL},
			Body:       []byte{},
		}
	}
	return nil
}

// withRestricted adds back the headers rules never saw
func withRestricted(modified, original map[string]string) map[string]string {
	headers := make(map[string]string, len(modified))
	for k, v := range modified {
		if !webrequest.IsRestrictedHeader(k) {
			headers[k] = v
		}
	}
	for k, v := range original {
		if webrequest.IsRestrictedHeader(k) {
			headers[k] = v
		}
	}
	return headers
}
