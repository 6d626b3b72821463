package webrequest

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"gitlab.com/kittcore/kitt"
)

// Rule applies its actions to requests matched by any of its conditions
type Rule struct {
	ID          string
	ExtensionID string
	Priority    int
	Conditions  []Condition
	Actions     []kitt.RuleAction
}

// Matches if any condition matches the request
func (r *Rule) Matches(details *kitt.WebRequestDetails) bool {
	for _, c := range r.Conditions {
		if c.Matches(details) {
			return true
		}
	}
	return false
}

// ContainsActionWithCallbackID returns true if one of the actions calls the listener
func (r *Rule) ContainsActionWithCallbackID(callbackID string) bool {
	for _, action := range r.Actions {
		if blockable, ok := action.(kitt.Blockable); ok && blockable.ListenerID() == callbackID {
			return true
		}
	}
	return false
}

// Apply the actions in order, each one waiting for the result of the previous. An action
// that does not finish within actionTimeout is skipped and resp is kept as it was.
func (r *Rule) Apply(ctx context.Context, details *kitt.WebRequestDetails, resp kitt.BlockingResponse, actionTimeout time.Duration) kitt.BlockingResponse {
	for _, action := range r.Actions {
		if ctx.Err() != nil {
			return resp
		}

		f := action.Apply(details, resp)
		actionCtx, cancel := context.WithTimeout(ctx, actionTimeout)
		next, err := f.Wait(actionCtx)
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("rule_id", r.ID).Str("action", action.String()).Str("request_id", details.RequestID).Msg("rule action did not complete")
			continue
		}
		resp = next
	}
	return resp
}
