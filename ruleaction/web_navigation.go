package ruleaction

import (
	"github.com/rs/zerolog/log"
	"gitlab.com/kittcore/kitt"
)

// WebNavigation only carries extraInfo for webNavigation listeners, it never
// takes part in request handling.
type WebNavigation struct {
	blockable
}

// NewWebNavigation action
func NewWebNavigation(dispatcher kitt.EventDispatcher) *WebNavigation {
	return &WebNavigation{blockable: newBlockable(kitt.ActWebNavigation, dispatcher)}
}

// Apply must not be reached, the response is passed through
func (a *WebNavigation) Apply(details *kitt.WebRequestDetails, resp kitt.BlockingResponse) *kitt.Future {
	log.Warn().Str("request_id", details.RequestID).Msg("WebNavigation action applied to a request")
	return kitt.ResolvedFuture(resp)
}

func (a *WebNavigation) String() string {
	return a.blockable.String() + " (webNavigation only)"
}
