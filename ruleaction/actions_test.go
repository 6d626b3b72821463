package ruleaction_test

import (
	"context"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"
	"gitlab.com/kittcore/kitt"
	"gitlab.com/kittcore/mock"
	"gitlab.com/kittcore/ruleaction"
)

var errTest = errors.New("listener exploded")

func waitFuture(t *testing.T, f *kitt.Future) kitt.BlockingResponse {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	resp, err := f.Wait(ctx)
	if err != nil {
		t.Fatalf("error waiting for action: %s\n", err)
	}
	return resp
}

func TestRedirectToEmptyDocument(t *testing.T) {
	dispatcher := mock.MakeMockEventDispatcher(nil)
	action := ruleaction.New(kitt.Properties{"instanceType": "declarativeWebRequest.RedirectToEmptyDocument"}, dispatcher)
	details := mock.MakeMockDetails(kitt.StageBeforeRequest)

	f := action.Apply(details, kitt.BlockingResponse{})
	if !f.Resolved() {
		t.Fatalf("empty document must complete synchronously")
	}
	resp := waitFuture(t, f)
	if resp.FakeResponse == nil || resp.FakeResponse.MIMEType != "text/plain" {
		t.Fatalf("expected text/plain fake response got %v\n", resp.FakeResponse)
	}
	if resp.FakeResponse.ExpectedLength != 1 {
		t.Fatalf("expected length 1 got %d\n", resp.FakeResponse.ExpectedLength)
	}
	if string(resp.FakeData) != " " {
		t.Fatalf("expected single space got %q\n", string(resp.FakeData))
	}
}

func TestRedirectRequest(t *testing.T) {
	dispatcher := mock.MakeMockEventDispatcher(nil)
	details := mock.MakeMockDetails(kitt.StageBeforeRequest)

	action := ruleaction.New(kitt.Properties{"instanceType": "declarativeWebRequest.RedirectRequest", "redirectUrl": "https://b.example/"}, dispatcher)
	resp := waitFuture(t, action.Apply(details, kitt.BlockingResponse{RedirectURL: kitt.StringPtr("https://a.example/")}))
	if resp.RedirectURL == nil || *resp.RedirectURL != "https://b.example/" {
		t.Fatalf("expected redirect to be overwritten got %v\n", resp.RedirectURL)
	}

	// missing configuration still overwrites
	action = ruleaction.New(kitt.Properties{"instanceType": "declarativeWebRequest.RedirectRequest"}, dispatcher)
	resp = waitFuture(t, action.Apply(details, resp))
	if resp.RedirectURL != nil {
		t.Fatalf("expected redirect to be cleared got %v\n", *resp.RedirectURL)
	}
}

func TestCancelIsMonotonic(t *testing.T) {
	dispatcher := mock.MakeMockEventDispatcher(&kitt.ListenerResponse{Cancel: false})
	details := mock.MakeMockDetails(kitt.StageHeadersReceived)

	cancel := ruleaction.New(kitt.Properties{"instanceType": "declarativeWebRequest.CancelRequest"}, dispatcher)
	listener := ruleaction.New(kitt.Properties{"instanceType": "webRequest.onHeadersReceived", "extraInfo": []string{"blocking"}}, dispatcher).(kitt.Blockable)
	listener.SetListenerID("abcde")

	resp := waitFuture(t, cancel.Apply(details, kitt.BlockingResponse{}))
	resp = waitFuture(t, listener.Apply(details, resp))
	if !resp.Cancel {
		t.Fatalf("cancel must stay set after a later action returns cancel false")
	}
}

func TestOnBeforeSendHeadersBlocking(t *testing.T) {
	dispatcher := mock.MakeMockAsyncEventDispatcher(&kitt.ListenerResponse{
		Cancel:         false,
		RequestHeaders: []kitt.HeaderEntry{{Name: "X-Test", Value: "1"}},
	})

	action := ruleaction.New(kitt.Properties{
		"instanceType": "webRequest.onBeforeSendHeaders",
		"extraInfo":    []interface{}{"blocking", "requestHeaders"},
	}, dispatcher).(kitt.Blockable)
	action.SetListenerID("lstnr")

	details := mock.MakeMockDetails(kitt.StageBeforeSendHeaders)
	resp := waitFuture(t, action.Apply(details, kitt.BlockingResponse{}))
	if resp.Cancel {
		t.Fatalf("expected cancel false")
	}
	if len(resp.RequestHeaders) != 1 || resp.RequestHeaders["X-Test"] != "1" {
		t.Fatalf("expected X-Test header got %v\n", resp.RequestHeaders)
	}
	if !dispatcher.HandleBlockingResponseCalled {
		t.Fatalf("expected blocking call")
	}
	if dispatcher.DispatchCalled {
		t.Fatalf("blocking action must not broadcast")
	}
}

func TestOnBeforeSendHeadersReportsResponseHeaders(t *testing.T) {
	dispatcher := mock.MakeMockEventDispatcher(&kitt.ListenerResponse{})
	action := ruleaction.New(kitt.Properties{
		"instanceType": "webRequest.onBeforeSendHeaders",
		"extraInfo":    []interface{}{"blocking", "requestHeaders"},
	}, dispatcher).(kitt.Blockable)
	action.SetListenerID("lstnr")

	details := mock.MakeMockDetails(kitt.StageBeforeSendHeaders)
	details.ResponseHeaders = map[string]string{"X-From-Response": "yes"}
	waitFuture(t, action.Apply(details, kitt.BlockingResponse{}))

	if len(dispatcher.Payloads) != 1 {
		t.Fatalf("expected one payload got %d\n", len(dispatcher.Payloads))
	}
	headers, ok := dispatcher.Payloads[0]["requestHeaders"].([]map[string]interface{})
	if !ok || len(headers) != 1 || headers[0]["name"] != "X-From-Response" {
		spew.Dump(dispatcher.Payloads[0])
		t.Fatalf("requestHeaders should be built from the response headers")
	}
}

func TestNonBlockingDispatches(t *testing.T) {
	dispatcher := mock.MakeMockEventDispatcher(nil)
	action := ruleaction.New(kitt.Properties{
		"instanceType": "webRequest.onHeadersReceived",
		"extraInfo":    []interface{}{"responseHeaders"},
	}, dispatcher).(kitt.Blockable)
	action.SetListenerID("lstnr")

	details := mock.MakeMockDetails(kitt.StageHeadersReceived)
	f := action.Apply(details, kitt.BlockingResponse{})
	if !f.Resolved() {
		t.Fatalf("non blocking action must complete immediately")
	}
	events := dispatcher.Events()
	if len(events) != 1 || events[0].Event != "webRequest.onHeadersReceived" {
		t.Fatalf("expected a single onHeadersReceived dispatch got %d\n", len(events))
	}
	if _, ok := events[0].Payload["responseHeaders"]; !ok {
		t.Fatalf("expected response headers in payload")
	}
}

func TestListenerGone(t *testing.T) {
	dispatcher := mock.MakeMockEventDispatcher(&kitt.ListenerResponse{Cancel: true})
	dispatcher.HasListenerFn = func(listenerID string) bool {
		return false
	}
	action := ruleaction.New(kitt.Properties{
		"instanceType": "webRequest.onBeforeRequest",
		"extraInfo":    []interface{}{"blocking"},
	}, dispatcher).(kitt.Blockable)
	action.SetListenerID("gone1")

	f := action.Apply(mock.MakeMockDetails(kitt.StageBeforeRequest), kitt.BlockingResponse{})
	if !f.Resolved() {
		t.Fatalf("gone listener must complete immediately")
	}
	if resp := waitFuture(t, f); resp.Cancel {
		t.Fatalf("gone listener must not modify the response")
	}
	if dispatcher.HandleBlockingResponseCalled || dispatcher.DispatchCalled {
		t.Fatalf("gone listener must not be called")
	}
}

func TestListenerFailureKeepsResponse(t *testing.T) {
	dispatcher := mock.MakeMockEventDispatcher(nil)
	dispatcher.HandleBlockingResponseFn = func(listenerID string, payload map[string]interface{}, completion kitt.ListenerCompletion) {
		completion(&kitt.ListenerResponse{Cancel: true}, errTest)
	}
	action := ruleaction.New(kitt.Properties{
		"instanceType": "webRequest.onHeadersReceived",
		"extraInfo":    []interface{}{"blocking"},
	}, dispatcher).(kitt.Blockable)
	action.SetListenerID("lstnr")

	in := kitt.BlockingResponse{RedirectURL: kitt.StringPtr("https://keep/")}
	resp := waitFuture(t, action.Apply(mock.MakeMockDetails(kitt.StageHeadersReceived), in))
	if resp.Cancel || resp.RedirectURL == nil || *resp.RedirectURL != "https://keep/" {
		t.Fatalf("failed listener must not modify the response")
	}
}

func TestOnHeadersReceivedOverwrites(t *testing.T) {
	dispatcher := mock.MakeMockEventDispatcher(&kitt.ListenerResponse{
		ResponseHeaders: []kitt.HeaderEntry{{Name: "Content-Type", Value: "text/plain"}},
	})
	action := ruleaction.New(kitt.Properties{
		"instanceType": "webRequest.onHeadersReceived",
		"extraInfo":    []interface{}{"blocking", "responseHeaders"},
	}, dispatcher).(kitt.Blockable)
	action.SetListenerID("lstnr")

	in := kitt.BlockingResponse{RedirectURL: kitt.StringPtr("https://earlier/")}
	resp := waitFuture(t, action.Apply(mock.MakeMockDetails(kitt.StageHeadersReceived), in))
	if resp.RedirectURL != nil {
		t.Fatalf("redirect must be overwritten by the listener result")
	}
	if resp.ResponseHeaders["Content-Type"] != "text/plain" {
		t.Fatalf("expected response headers got %v\n", resp.ResponseHeaders)
	}
}

func TestSendMessageToExtension(t *testing.T) {
	dispatcher := mock.MakeMockEventDispatcher(nil)
	action := ruleaction.New(kitt.Properties{
		"instanceType": "declarativeWebRequest.SendMessageToExtension",
		"message":      "blocked",
	}, dispatcher)

	f := action.Apply(mock.MakeMockDetails(kitt.StageBeforeRequest), kitt.BlockingResponse{})
	if !f.Resolved() {
		t.Fatalf("send message must complete immediately")
	}
	events := dispatcher.Events()
	if len(events) != 1 || events[0].Event != "declarativeWebRequest.onMessage" || events[0].Payload["message"] != "blocked" {
		t.Fatalf("expected onMessage event")
	}
}

func TestWebNavigationPassThrough(t *testing.T) {
	dispatcher := mock.MakeMockEventDispatcher(nil)
	action := ruleaction.New(kitt.Properties{"instanceType": "webNavigation.onCommitted"}, dispatcher)
	resp := waitFuture(t, action.Apply(mock.MakeMockDetails(kitt.StageBeforeRequest), kitt.BlockingResponse{Cancel: true}))
	if !resp.Cancel {
		t.Fatalf("web navigation must not touch the response")
	}
}
