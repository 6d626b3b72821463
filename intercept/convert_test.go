package intercept_test

import (
	"testing"

	"github.com/wirepair/gcd/gcdapi"
	"gitlab.com/kittcore/intercept"
	"gitlab.com/kittcore/kitt"
)

func TestResourceType(t *testing.T) {
	var tests = []struct {
		cdpType  string
		isMain   bool
		expected kitt.ResourceType
	}{
		{"Document", true, kitt.ResourceMainFrame},
		{"Document", false, kitt.ResourceSubFrame},
		{"Script", false, kitt.ResourceScript},
		{"XHR", false, kitt.ResourceXHRAsync},
		{"Ping", false, kitt.ResourcePing},
		{"SomethingNew", false, kitt.ResourceOther},
	}

	for _, tt := range tests {
		if got := intercept.ResourceType(tt.cdpType, tt.isMain); got != tt.expected {
			t.Fatalf("%s: expected %s got %s\n", tt.cdpType, tt.expected, got)
		}
	}
}

func TestHeadersFromCDP(t *testing.T) {
	headers := intercept.HeadersFromCDP(map[string]interface{}{
		"Accept":     "*/*",
		"Set-Cookie": []interface{}{"a=b", "c=d"},
		"Empty":      nil,
		"Number":     1,
	})
	if headers["Accept"] != "*/*" || headers["Set-Cookie"] != "a=b\nc=d" {
		t.Fatalf("unexpected headers %v\n", headers)
	}
	if v, ok := headers["Empty"]; !ok || v != "" {
		t.Fatalf("expected empty header to be kept")
	}
	if _, ok := headers["Number"]; ok {
		t.Fatalf("unsupported header values must be dropped")
	}
}

func TestHeaderEntriesRoundTrip(t *testing.T) {
	entries := intercept.HeaderEntries(map[string]string{"b": "2", "a": "1\n3"})
	if len(entries) != 3 || entries[0].Name != "a" || entries[1].Value != "3" || entries[2].Name != "b" {
		t.Fatalf("unexpected entries %#v\n", entries)
	}

	headers := intercept.HeadersFromEntries(append(entries, nil, &gcdapi.FetchHeaderEntry{Name: "c", Value: "4"}))
	if headers["a"] != "1\n3" || headers["b"] != "2" || headers["c"] != "4" {
		t.Fatalf("unexpected headers %v\n", headers)
	}
}

func TestFrameIDs(t *testing.T) {
	frames := intercept.NewFrameIDs()
	if !frames.IsMainFrame("MAIN") {
		t.Fatalf("first frame seen must be the main frame")
	}
	if frames.ID("MAIN") != 0 || frames.ParentID("MAIN") != -1 {
		t.Fatalf("main frame must be 0 with parent -1")
	}

	frames.SetParent("CHILD", "MAIN")
	if frames.IsMainFrame("CHILD") {
		t.Fatalf("child is not the main frame")
	}
	child := frames.ID("CHILD")
	if child <= 0 {
		t.Fatalf("expected positive child id got %d\n", child)
	}
	if frames.ID("CHILD") != child {
		t.Fatalf("frame ids must be stable")
	}
	if frames.ParentID("CHILD") != 0 {
		t.Fatalf("expected child parent to be the main frame")
	}
	if frames.ParentID("UNKNOWN") != -1 {
		t.Fatalf("unknown parent must be -1")
	}

	frames.Remove("CHILD")
	if frames.ID("CHILD") == child {
		t.Fatalf("removed frames must get a new id")
	}

	frames.SetMainFrame("NEWMAIN")
	if !frames.IsMainFrame("NEWMAIN") || frames.ID("NEWMAIN") != 0 {
		t.Fatalf("expected NEWMAIN to be the main frame")
	}
}
