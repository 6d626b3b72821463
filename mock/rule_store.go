package mock

import (
	"sort"
	"sync"

	"gitlab.com/kittcore/kitt"
)

// RuleStore keeps declarative rules in memory
type RuleStore struct {
	InitFn     func() error
	InitCalled bool

	AddRuleFn     func(rule *kitt.RuleRecord) error
	AddRuleCalled bool

	RemoveRulesFn     func(extensionID string, ruleIDs []string) error
	RemoveRulesCalled bool

	RulesFn     func(extensionID string) ([]*kitt.RuleRecord, error)
	RulesCalled bool

	CloseFn     func() error
	CloseCalled bool
}

func (s *RuleStore) Init() error {
	s.InitCalled = true
	return s.InitFn()
}

func (s *RuleStore) AddRule(rule *kitt.RuleRecord) error {
	s.AddRuleCalled = true
	return s.AddRuleFn(rule)
}

func (s *RuleStore) RemoveRules(extensionID string, ruleIDs []string) error {
	s.RemoveRulesCalled = true
	return s.RemoveRulesFn(extensionID, ruleIDs)
}

func (s *RuleStore) Rules(extensionID string) ([]*kitt.RuleRecord, error) {
	s.RulesCalled = true
	return s.RulesFn(extensionID)
}

func (s *RuleStore) Close() error {
	s.CloseCalled = true
	return s.CloseFn()
}

func MakeMockRuleStore() *RuleStore {
	s := &RuleStore{}
	lock := &sync.RWMutex{}
	rules := make(map[string]map[string]*kitt.RuleRecord)
	var seq uint64

	s.InitFn = func() error {
		return nil
	}
	s.CloseFn = func() error {
		return nil
	}
	s.AddRuleFn = func(rule *kitt.RuleRecord) error {
		lock.Lock()
		defer lock.Unlock()
		if _, ok := rules[rule.ExtensionID]; !ok {
			rules[rule.ExtensionID] = make(map[string]*kitt.RuleRecord)
		}
		seq++
		rule.Seq = seq
		rules[rule.ExtensionID][rule.ID] = rule
		return nil
	}
	s.RemoveRulesFn = func(extensionID string, ruleIDs []string) error {
		lock.Lock()
		defer lock.Unlock()
		if ruleIDs == nil {
			delete(rules, extensionID)
			return nil
		}
		for _, id := range ruleIDs {
			delete(rules[extensionID], id)
		}
		return nil
	}
	s.RulesFn = func(extensionID string) ([]*kitt.RuleRecord, error) {
		lock.RLock()
		defer lock.RUnlock()
		ret := make([]*kitt.RuleRecord, 0)
		for _, r := range rules[extensionID] {
			ret = append(ret, r)
		}
		sort.Slice(ret, func(i, j int) bool {
			return ret[i].Seq < ret[j].Seq
		})
		return ret, nil
	}
	return s
}
