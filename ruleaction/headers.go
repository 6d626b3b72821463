package ruleaction

import (
	"sort"

	"gitlab.com/kittcore/kitt"
)

// chromeHeaders converts a header map to the listener representation, sorted by name.
// A nil map yields an empty list.
func chromeHeaders(headers map[string]string) []map[string]interface{} {
	entries := kitt.HeadersFromMap(headers)
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name < entries[j].Name
	})
	list := make([]map[string]interface{}, len(entries))
	for i, h := range entries {
		list[i] = map[string]interface{}{"name": h.Name, "value": h.Value}
	}
	return list
}
