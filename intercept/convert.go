package intercept

import (
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/wirepair/gcd/gcdapi"
	"gitlab.com/kittcore/kitt"
)

// cdpResourceTypes maps Network.ResourceType to kitt resource types, Document is
// resolved by frame
var cdpResourceTypes = map[string]kitt.ResourceType{
	"Stylesheet":         kitt.ResourceStylesheet,
	"Image":              kitt.ResourceImage,
	"Media":              kitt.ResourceMedia,
	"Font":               kitt.ResourceFont,
	"Script":             kitt.ResourceScript,
	"TextTrack":          kitt.ResourceOther,
	"XHR":                kitt.ResourceXHRAsync,
	"Fetch":              kitt.ResourceXHRAsync,
	"EventSource":        kitt.ResourceXHR,
	"WebSocket":          kitt.ResourceWebSocket,
	"Manifest":           kitt.ResourceOther,
	"SignedExchange":     kitt.ResourceOther,
	"Ping":               kitt.ResourcePing,
	"CSPViolationReport": kitt.ResourcePing,
	"Other":              kitt.ResourceOther,
}

// ResourceType of a paused request, documents are main_frame in the top frame and
// sub_frame everywhere else
func ResourceType(cdpType string, isMainFrame bool) kitt.ResourceType {
	if cdpType == "Document" {
		if isMainFrame {
			return kitt.ResourceMainFrame
		}
		return kitt.ResourceSubFrame
	}
	if rt, ok := cdpResourceTypes[cdpType]; ok {
		return rt
	}
	return kitt.ResourceOther
}

// HeadersFromCDP flattens Network.Headers, repeated values are joined the way chrome
// reports them
func HeadersFromCDP(cdpHeaders map[string]interface{}) map[string]string {
	headers := make(map[string]string, len(cdpHeaders))
	for k, v := range cdpHeaders {
		switch rv := v.(type) {
		case string:
			headers[k] = rv
		case []string:
			headers[k] = strings.Join(rv, "\n")
		case []interface{}:
			values := make([]string, 0, len(rv))
			for _, value := range rv {
				if s, ok := value.(string); ok {
					values = append(values, s)
				}
			}
			headers[k] = strings.Join(values, "\n")
		case nil:
			headers[k] = ""
		default:
			log.Warn().Str("header_name", k).Msg("unable to encode header value")
		}
	}
	return headers
}

// HeadersFromEntries converts Fetch header entries to a map
func HeadersFromEntries(entries []*gcdapi.FetchHeaderEntry) map[string]string {
	headers := make(map[string]string, len(entries))
	for _, h := range entries {
		if h == nil {
			continue
		}
		if existing, ok := headers[h.Name]; ok {
			headers[h.Name] = existing + "\n" + h.Value
			continue
		}
		headers[h.Name] = h.Value
	}
	return headers
}

// HeaderEntries for Fetch commands, sorted by name
func HeaderEntries(headers map[string]string) []*gcdapi.FetchHeaderEntry {
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]*gcdapi.FetchHeaderEntry, 0, len(headers))
	for _, name := range names {
		for _, value := range strings.Split(headers[name], "\n") {
			entries = append(entries, &gcdapi.FetchHeaderEntry{Name: name, Value: value})
		}
	}
	return entries
}

// FrameIDs maps chrome's frame ids to the integer ids extensions see. The main frame
// is always 0.
type FrameIDs struct {
	lock    *sync.Mutex
	mainID  string
	ids     map[string]int64
	parents map[string]string
	next    int64
}

// NewFrameIDs for one tab
func NewFrameIDs() *FrameIDs {
	return &FrameIDs{
		lock:    &sync.Mutex{},
		ids:     make(map[string]int64),
		parents: make(map[string]string),
		next:    1,
	}
}

// SetMainFrame once the tab's top frame is known
func (f *FrameIDs) SetMainFrame(frameID string) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.mainID = frameID
	f.ids[frameID] = 0
}

// SetParent records a frame attachment
func (f *FrameIDs) SetParent(frameID, parentID string) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.parents[frameID] = parentID
}

// IsMainFrame returns true for the top frame, the first frame seen is assumed to be
// the top frame when none was set
func (f *FrameIDs) IsMainFrame(frameID string) bool {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.mainID == "" {
		f.mainID = frameID
		f.ids[frameID] = 0
	}
	return f.mainID == frameID
}

// ID of the frame, allocating one for frames not seen before
func (f *FrameIDs) ID(frameID string) int64 {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.id(frameID)
}

// ParentID of the frame, -1 for the main frame and unknown parents
func (f *FrameIDs) ParentID(frameID string) int64 {
	f.lock.Lock()
	defer f.lock.Unlock()
	parent, ok := f.parents[frameID]
	if !ok || frameID == f.mainID {
		return -1
	}
	return f.id(parent)
}

// Remove a detached frame
func (f *FrameIDs) Remove(frameID string) {
	f.lock.Lock()
	defer f.lock.Unlock()
	delete(f.ids, frameID)
	delete(f.parents, frameID)
}

func (f *FrameIDs) id(frameID string) int64 {
	if id, ok := f.ids[frameID]; ok {
		return id
	}
	id := f.next
	f.next++
	f.ids[frameID] = id
	return id
}
