package webrequest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gitlab.com/kittcore/kitt"
)

// headers never published to extensions
var restrictedHeaders = []string{
	"Authorization", "Cache-Control", "Connection", "Content-Length",
	"Host", "If-Modified-Since", "If-None-Match", "If-Range", "Partial-Data",
	"Pragma", "Proxy-Authorization", "Proxy-Connection", "Transfer-Encoding",
}

// Dispatcher holds the request rules of all extensions and folds them over each
// request stage
type Dispatcher struct {
	lock          *sync.RWMutex
	rules         []*Rule
	actionTimeout time.Duration
}

// NewDispatcher with the per action timeout from cfg
func NewDispatcher(cfg *kitt.Config) *Dispatcher {
	timeout := time.Duration(cfg.ListenerTimeout) * time.Millisecond
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{
		lock:          &sync.RWMutex{},
		rules:         make([]*Rule, 0),
		actionTimeout: timeout,
	}
}

// Add a rule, replacing a rule of the same extension and id in place
func (d *Dispatcher) Add(rule *Rule) {
	d.lock.Lock()
	defer d.lock.Unlock()

	for i, r := range d.rules {
		if r.ExtensionID == rule.ExtensionID && r.ID == rule.ID {
			d.rules[i] = rule
			return
		}
	}
	d.rules = append(d.rules, rule)
}

// RemoveForCallbackID removes every rule with an action calling the listener
func (d *Dispatcher) RemoveForCallbackID(callbackID string) int {
	return d.removeIf(func(r *Rule) bool {
		return r.ContainsActionWithCallbackID(callbackID)
	})
}

// RemoveRules of an extension by id, nil ids removes all of them
func (d *Dispatcher) RemoveRules(extensionID string, ids []string) int {
	if ids == nil {
		return d.RemoveForExtension(extensionID)
	}
	return d.removeIf(func(r *Rule) bool {
		return r.ExtensionID == extensionID && includeFunction(ids, r.ID)
	})
}

// RemoveForExtension removes all rules of the extension
func (d *Dispatcher) RemoveForExtension(extensionID string) int {
	return d.removeIf(func(r *Rule) bool {
		return r.ExtensionID == extensionID
	})
}

func (d *Dispatcher) removeIf(fn func(r *Rule) bool) int {
	d.lock.Lock()
	defer d.lock.Unlock()

	kept := make([]*Rule, 0, len(d.rules))
	for _, r := range d.rules {
		if !fn(r) {
			kept = append(kept, r)
		}
	}
	removed := len(d.rules) - len(kept)
	d.rules = kept
	return removed
}

// Rules of an extension in registration order
func (d *Dispatcher) Rules(extensionID string) []*Rule {
	d.lock.RLock()
	defer d.lock.RUnlock()

	rules := make([]*Rule, 0)
	for _, r := range d.rules {
		if r.ExtensionID == extensionID {
			rules = append(rules, r)
		}
	}
	return rules
}

// OnBeforeRequest runs the rules before the request is sent
func (d *Dispatcher) OnBeforeRequest(ctx context.Context, details *kitt.WebRequestDetails) kitt.BlockingResponse {
	return d.applyRules(ctx, details.WithStage(kitt.StageBeforeRequest))
}

// OnBeforeSendHeaders merges the cookie headers into the request headers and strips the
// ones extensions may not see before running the rules
func (d *Dispatcher) OnBeforeSendHeaders(ctx context.Context, headers, cookies map[string]string, details *kitt.WebRequestDetails) kitt.BlockingResponse {
	staged := details.WithStage(kitt.StageBeforeSendHeaders)
	if headers != nil {
		all := make(map[string]string, len(headers)+len(cookies))
		for k, v := range headers {
			all[k] = v
		}
		for k, v := range cookies {
			all[k] = v
		}
		for k := range all {
			if IsRestrictedHeader(k) {
				delete(all, k)
			}
		}
		staged.RequestHeaders = all
	}
	return d.applyRules(ctx, staged)
}

// OnHeadersReceived runs the rules once the response headers are known
func (d *Dispatcher) OnHeadersReceived(ctx context.Context, headers map[string]string, details *kitt.WebRequestDetails) kitt.BlockingResponse {
	staged := details.WithStage(kitt.StageHeadersReceived)
	staged.ResponseHeaders = headers
	return d.applyRules(ctx, staged)
}

func (d *Dispatcher) applyRules(ctx context.Context, details *kitt.WebRequestDetails) kitt.BlockingResponse {
	d.lock.RLock()
	matched := make([]*Rule, 0)
	for _, r := range d.rules {
		if r.Matches(details) {
			matched = append(matched, r)
		}
	}
	d.lock.RUnlock()

	resp := kitt.BlockingResponse{}
	for _, r := range matched {
		resp = r.Apply(ctx, details, resp, d.actionTimeout)
	}

	if resp.IsModified() {
		log.Debug().Str("request_id", details.RequestID).Str("stage", string(details.Stage)).Str("url", details.URL()).Int("rules", len(matched)).Bool("cancel", resp.Cancel).Msg("request modified by rules")
	}
	return resp
}

// IsRestrictedHeader returns true for headers extensions may neither see nor change
func IsRestrictedHeader(header string) bool {
	for _, h := range restrictedHeaders {
		if strings.EqualFold(h, header) {
			return true
		}
	}
	return false
}
