package kitt

// HeaderEntry chrome's header representation
type HeaderEntry struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ListenerResponse is the blocking response fragment returned by a JS listener
type ListenerResponse struct {
	Cancel          bool
	RedirectURL     *string
	RequestHeaders  []HeaderEntry // nil if the listener did not return them
	ResponseHeaders []HeaderEntry
}

// ListenerCompletion called once with the listener's result or an error
type ListenerCompletion func(result *ListenerResponse, err error)

// EventDispatcher delivers events to extension listeners
type EventDispatcher interface {
	// Dispatch to every listener of the event without waiting
	Dispatch(event string, payload map[string]interface{})
	// HandleBlockingResponse calls a single listener and parses its result
	HandleBlockingResponse(listenerID string, payload map[string]interface{}, completion ListenerCompletion)
	// HasListener returns false once the listener was removed
	HasListener(listenerID string) bool
}

// HeadersToMap converts chrome header entries to a map, later entries win
func HeadersToMap(entries []HeaderEntry) map[string]string {
	headers := make(map[string]string, len(entries))
	for _, h := range entries {
		headers[h.Name] = h.Value
	}
	return headers
}

// HeadersFromMap converts a header map into chrome header entries
func HeadersFromMap(headers map[string]string) []HeaderEntry {
	entries := make([]HeaderEntry, 0, len(headers))
	for name, value := range headers {
		entries = append(entries, HeaderEntry{Name: name, Value: value})
	}
	return entries
}
