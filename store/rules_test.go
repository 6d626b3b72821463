package store_test

import (
	"os"
	"testing"

	"github.com/pkg/errors"
	"gitlab.com/kittcore/kitt"
	"gitlab.com/kittcore/store"
)

func openRuleStore(t *testing.T, path string) *store.RuleStore {
	s := store.NewRuleStore(path)
	if err := s.Init(); err != nil {
		t.Fatalf("error init rule store: %s\n", err)
	}
	return s
}

func TestRuleStoreOrder(t *testing.T) {
	path := "testdata/rules/order"
	os.RemoveAll(path)

	s := openRuleStore(t, path)
	defer s.Close()

	for _, id := range []string{"b", "a", "c"} {
		if err := s.AddRule(&kitt.RuleRecord{ExtensionID: "ext", ID: id, Raw: []byte(`{"id":"` + id + `"}`)}); err != nil {
			t.Fatalf("error adding rule: %s\n", err)
		}
	}
	// replacing keeps the original position
	if err := s.AddRule(&kitt.RuleRecord{ExtensionID: "ext", ID: "b", Priority: 5, Raw: []byte(`{"id":"b","priority":5}`)}); err != nil {
		t.Fatalf("error replacing rule: %s\n", err)
	}

	rules, err := s.Rules("ext")
	if err != nil {
		t.Fatalf("error reading rules: %s\n", err)
	}
	if len(rules) != 3 {
		t.Fatalf("expected 3 rules got %d\n", len(rules))
	}
	for i, id := range []string{"b", "a", "c"} {
		if rules[i].ID != id {
			t.Fatalf("expected %s at %d got %s\n", id, i, rules[i].ID)
		}
	}
	if rules[0].Priority != 5 {
		t.Fatalf("expected replaced rule to be stored")
	}
}

func TestRuleStoreRemove(t *testing.T) {
	path := "testdata/rules/remove"
	os.RemoveAll(path)

	s := openRuleStore(t, path)
	defer s.Close()

	for _, ext := range []string{"ext", "other"} {
		for _, id := range []string{"a", "b", "c"} {
			if err := s.AddRule(&kitt.RuleRecord{ExtensionID: ext, ID: id}); err != nil {
				t.Fatalf("error adding rule: %s\n", err)
			}
		}
	}

	if err := s.RemoveRules("ext", []string{"a", "unknown"}); err != nil {
		t.Fatalf("error removing rules: %s\n", err)
	}
	if _, err := s.Rule("ext", "a"); !errors.Is(err, store.ErrRuleNotFound) {
		t.Fatalf("expected rule not found got %v\n", err)
	}
	if rule, err := s.Rule("ext", "b"); err != nil || rule.ID != "b" {
		t.Fatalf("expected rule b got %v\n", err)
	}

	if err := s.RemoveRules("ext", nil); err != nil {
		t.Fatalf("error removing all rules: %s\n", err)
	}
	if rules, _ := s.Rules("ext"); len(rules) != 0 {
		t.Fatalf("expected no rules got %d\n", len(rules))
	}
	if rules, _ := s.Rules("other"); len(rules) != 3 {
		t.Fatalf("other extension must keep its rules got %d\n", len(rules))
	}

	exts, err := s.Extensions()
	if err != nil {
		t.Fatalf("error listing extensions: %s\n", err)
	}
	if len(exts) != 1 || exts[0] != "other" {
		t.Fatalf("expected only other got %v\n", exts)
	}
}

func TestRuleStoreReopen(t *testing.T) {
	path := "testdata/rules/reopen"
	os.RemoveAll(path)

	s := openRuleStore(t, path)
	if err := s.AddRule(&kitt.RuleRecord{ExtensionID: "ext", ID: "first"}); err != nil {
		t.Fatalf("error adding rule: %s\n", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("error closing: %s\n", err)
	}

	s = openRuleStore(t, path)
	defer s.Close()
	if err := s.AddRule(&kitt.RuleRecord{ExtensionID: "ext", ID: "second"}); err != nil {
		t.Fatalf("error adding rule: %s\n", err)
	}

	rules, err := s.Rules("ext")
	if err != nil {
		t.Fatalf("error reading rules: %s\n", err)
	}
	if len(rules) != 2 || rules[0].ID != "first" || rules[1].ID != "second" {
		t.Fatalf("expected first, second after reopen")
	}
}
