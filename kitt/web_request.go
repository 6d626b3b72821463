package kitt

import (
	"time"
)

// Stage of a web request as reported to listeners
type Stage string

const (
	StageBeforeRequest     Stage = "onBeforeRequest"
	StageBeforeSendHeaders Stage = "onBeforeSendHeaders"
	StageHeadersReceived   Stage = "onHeadersReceived"
)

// ResourceType of the requested resource
type ResourceType int8

const (
	ResourceOther ResourceType = iota
	ResourceMainFrame
	ResourceSubFrame
	ResourceStylesheet
	ResourceScript
	ResourceImage
	ResourceObject
	ResourceXHR
	// internal kinds, reported to extensions as one of the above
	ResourceXHRSync
	ResourceXHRAsync
	ResourceFont
	ResourceMedia
	ResourceWebSocket
	ResourcePing
)

// ResourceTypeMap of chrome resource type names
var ResourceTypeMap = map[ResourceType]string{
	ResourceOther:      "other",
	ResourceMainFrame:  "main_frame",
	ResourceSubFrame:   "sub_frame",
	ResourceStylesheet: "stylesheet",
	ResourceScript:     "script",
	ResourceImage:      "image",
	ResourceObject:     "object",
	ResourceXHR:        "xmlhttprequest",
	ResourceXHRSync:    "xmlhttprequest",
	ResourceXHRAsync:   "xmlhttprequest",
	ResourceFont:       "other",
	ResourceMedia:      "other",
	ResourceWebSocket:  "other",
	ResourcePing:       "other",
}

func (r ResourceType) String() string {
	if name, ok := ResourceTypeMap[r]; ok {
		return name
	}
	return "other"
}

// Request is the subset of the network request visible to rules
type Request struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    []byte
}

// WebRequestDetails immutable facts about a single intercepted network event
type WebRequestDetails struct {
	RequestID             string
	Request               *Request
	Stage                 Stage
	TabID                 int64
	FrameID               int64
	ParentFrameID         int64
	ResourceType          ResourceType
	ResourceTypeTentative bool
	IsXHRAsync            bool
	RequestHeaders        map[string]string // set at onBeforeSendHeaders
	ResponseHeaders       map[string]string // set at onHeadersReceived
	Timestamp             time.Time
}

// NewWebRequestDetails for a request, allocating a new global request id
func NewWebRequestDetails(req *Request, tabID, frameID, parentFrameID int64, resourceType ResourceType) *WebRequestDetails {
	d := &WebRequestDetails{
		RequestID:     NextRequestID(),
		Request:       req,
		TabID:         tabID,
		FrameID:       frameID,
		ParentFrameID: parentFrameID,
		ResourceType:  resourceType,
		Timestamp:     time.Now(),
	}
	switch resourceType {
	case ResourceXHRSync:
		d.IsXHRAsync = false
	case ResourceXHRAsync, ResourceXHR:
		d.IsXHRAsync = true
	}
	return d
}

// WithStage returns a shallow copy of the details for the given stage
func (d *WebRequestDetails) WithStage(stage Stage) *WebRequestDetails {
	c := *d
	c.Stage = stage
	return &c
}

// URL of the request or about:blank
func (d *WebRequestDetails) URL() string {
	if d.Request == nil || d.Request.URL == "" {
		return "about:blank"
	}
	return d.Request.URL
}

// Method of the request, lower case get by default
func (d *WebRequestDetails) Method() string {
	if d.Request == nil || d.Request.Method == "" {
		return "get"
	}
	return d.Request.Method
}

// ListenerPayload is the dictionary handed to webRequest listeners
func (d *WebRequestDetails) ListenerPayload() map[string]interface{} {
	payload := map[string]interface{}{
		"stage":         string(d.Stage),
		"requestId":     d.RequestID,
		"url":           d.URL(),
		"method":        d.Method(),
		"frameId":       d.FrameID,
		"parentFrameId": d.ParentFrameID,
		"tabId":         d.TabID,
		"type":          d.ResourceType.String(),
		"timeStamp":     float64(d.Timestamp.UnixNano()) / float64(time.Millisecond),
	}
	if d.ResourceTypeTentative {
		payload["typeTentative"] = true
	}
	return payload
}
