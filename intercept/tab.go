package intercept

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/wirepair/gcd"
	"github.com/wirepair/gcd/gcdapi"
	"gitlab.com/kittcore/kitt"
)

// ErrNavigating returned when chrome reports a navigation error
var ErrNavigating = errors.New("error navigating")

const blockedReason = "BlockedByClient"

// Tab pauses every request of a chrome tab at the request and response stage and
// runs the rules over it
type Tab struct {
	ID                int64
	target            *gcd.ChromeTarget
	stager            Stager
	frames            *FrameIDs
	timeout           time.Duration
	navigationTimeout time.Duration

	lock         *sync.Mutex
	requestIDs   map[string]string // chrome network id to kitt request id
	navigationCh chan struct{}
	exitCh       chan struct{}
	closed       int32
}

// NewTab enables interception on target
func NewTab(ctx context.Context, target *gcd.ChromeTarget, stager Stager, timeout time.Duration) (*Tab, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	t := &Tab{
		ID:                kitt.NextTabID(),
		target:            target,
		stager:            stager,
		frames:            NewFrameIDs(),
		timeout:           timeout,
		navigationTimeout: 30 * time.Second,
		lock:              &sync.Mutex{},
		requestIDs:        make(map[string]string),
		navigationCh:      make(chan struct{}, 1),
		exitCh:            make(chan struct{}),
	}

	if _, err := t.target.Page.Enable(); err != nil {
		return nil, errors.Wrap(err, "enabling page events")
	}
	t.subscribeFrameEvents()

	patterns := []*gcdapi.FetchRequestPattern{
		{UrlPattern: "*", RequestStage: "Request"},
		{UrlPattern: "*", RequestStage: "Response"},
	}
	if _, err := t.target.Fetch.EnableWithParams(&gcdapi.FetchEnableParams{Patterns: patterns}); err != nil {
		return nil, errors.Wrap(err, "enabling fetch interception")
	}

	t.target.Subscribe("Fetch.requestPaused", func(target *gcd.ChromeTarget, payload []byte) {
		message := &gcdapi.FetchRequestPausedEvent{}
		if err := json.Unmarshal(payload, message); err != nil {
			log.Error().Err(err).Int64("tab_id", t.ID).Msg("Fetch.requestPaused event was unable to decode")
			return
		}
		go t.handlePaused(ctx, message)
	})
	return t, nil
}

// Navigate and wait for the load event
func (t *Tab) Navigate(ctx context.Context, url string) error {
	navParams := &gcdapi.PageNavigateParams{Url: url, TransitionType: "typed"}
	_, _, errText, err := t.target.Page.NavigateWithParams(navParams)
	if err != nil {
		return err
	}
	if errText != "" {
		return errors.Wrap(ErrNavigating, errText)
	}

	timer := time.NewTimer(t.navigationTimeout)
	defer timer.Stop()
	select {
	case <-t.navigationCh:
		return nil
	case <-timer.C:
		return errors.Wrap(ErrNavigating, "timed out waiting for load")
	case <-ctx.Done():
		return ctx.Err()
	case <-t.exitCh:
		return ErrBrowserClosing
	}
}

// Close stops handling events, paused requests still in flight are answered
func (t *Tab) Close() {
	if atomic.CompareAndSwapInt32(&t.closed, 0, 1) {
		close(t.exitCh)
	}
}

func (t *Tab) subscribeFrameEvents() {
	t.target.Subscribe("Page.frameNavigated", func(target *gcd.ChromeTarget, payload []byte) {
		message := &gcdapi.PageFrameNavigatedEvent{}
		if err := json.Unmarshal(payload, message); err != nil || message.Params.Frame == nil {
			return
		}
		if message.Params.Frame.ParentId == "" {
			t.frames.SetMainFrame(message.Params.Frame.Id)
		}
	})

	t.target.Subscribe("Page.frameAttached", func(target *gcd.ChromeTarget, payload []byte) {
		message := &gcdapi.PageFrameAttachedEvent{}
		if err := json.Unmarshal(payload, message); err != nil {
			return
		}
		t.frames.SetParent(message.Params.FrameId, message.Params.ParentFrameId)
	})

	t.target.Subscribe("Page.frameDetached", func(target *gcd.ChromeTarget, payload []byte) {
		message := &gcdapi.PageFrameDetachedEvent{}
		if err := json.Unmarshal(payload, message); err != nil {
			return
		}
		t.frames.Remove(message.Params.FrameId)
	})

	t.target.Subscribe("Page.loadEventFired", func(target *gcd.ChromeTarget, payload []byte) {
		select {
		case t.navigationCh <- struct{}{}:
		default:
		}
	})
}

func (t *Tab) handlePaused(ctx context.Context, message *gcdapi.FetchRequestPausedEvent) {
	p := message.Params
	ctx, cancel := context.WithTimeout(ctx, t.timeout*2)
	defer cancel()

	if p.ResponseErrorReason != "" {
		t.apply(p.RequestId, &Decision{Verdict: VerdictContinue})
		return
	}

	details := t.details(message)
	var decision *Decision
	if p.ResponseStatusCode != 0 || p.ResponseHeaders != nil {
		decision = DecideResponse(ctx, t.stager, details, p.ResponseStatusCode, HeadersFromEntries(p.ResponseHeaders))
		t.forget(p.NetworkId)
	} else {
		decision = DecideRequest(ctx, t.stager, details, details.Request.Headers, nil)
		if decision.Verdict != VerdictContinue {
			t.forget(p.NetworkId)
		}
	}

	log.Debug().Int64("tab_id", t.ID).Str("request_id", details.RequestID).Str("url", details.URL()).Str("verdict", decision.Verdict.String()).Msg("paused request handled")
	t.apply(p.RequestId, decision)
}

// details for a paused request, both stages of a request share one request id
func (t *Tab) details(message *gcdapi.FetchRequestPausedEvent) *kitt.WebRequestDetails {
	p := message.Params
	req := &kitt.Request{}
	if p.Request != nil {
		req.URL = p.Request.Url
		req.Method = p.Request.Method
		req.Headers = HeadersFromCDP(p.Request.Headers)
		if p.Request.PostData != "" {
			req.Body = []byte(p.Request.PostData)
		}
	}

	isMain := t.frames.IsMainFrame(p.FrameId)
	details := kitt.NewWebRequestDetails(req, t.ID, t.frames.ID(p.FrameId), t.frames.ParentID(p.FrameId), ResourceType(p.ResourceType, isMain))
	details.RequestID = t.requestID(p.NetworkId, details.RequestID)
	return details
}

func (t *Tab) requestID(networkID, allocated string) string {
	if networkID == "" {
		return allocated
	}
	t.lock.Lock()
	defer t.lock.Unlock()
	if id, ok := t.requestIDs[networkID]; ok {
		return id
	}
	t.requestIDs[networkID] = allocated
	return allocated
}

func (t *Tab) forget(networkID string) {
	t.lock.Lock()
	defer t.lock.Unlock()
	delete(t.requestIDs, networkID)
}

func (t *Tab) apply(requestID string, decision *Decision) {
	var err error
	switch decision.Verdict {
	case VerdictFail:
		_, err = t.target.Fetch.FailRequestWithParams(&gcdapi.FetchFailRequestParams{
			RequestId:   requestID,
			ErrorReason: blockedReason,
		})
	case VerdictFulfill:
		params := &gcdapi.FetchFulfillRequestParams{
			RequestId:       requestID,
			ResponseCode:    decision.StatusCode,
			ResponseHeaders: HeaderEntries(decision.Headers),
		}
		if decision.KeepBody {
			body, encoded, bodyErr := t.target.Fetch.GetResponseBody(requestID)
			if bodyErr != nil {
				log.Warn().Err(bodyErr).Int64("tab_id", t.ID).Msg("unable to get body")
			}
			if !encoded {
				body = base64.StdEncoding.EncodeToString([]byte(body))
			}
			params.Body = body
		} else {
			params.Body = base64.StdEncoding.EncodeToString(decision.Body)
		}
		_, err = t.target.Fetch.FulfillRequestWithParams(params)
	default:
		params := &gcdapi.FetchContinueRequestParams{RequestId: requestID}
		if decision.Headers != nil {
			params.Headers = HeaderEntries(decision.Headers)
		}
		_, err = t.target.Fetch.ContinueRequestWithParams(params)
	}

	if err != nil {
		log.Warn().Err(err).Int64("tab_id", t.ID).Str("verdict", decision.Verdict.String()).Msg("failed to answer paused request")
	}
}
