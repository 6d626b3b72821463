package store

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v4"
	"gitlab.com/kittcore/kitt"
)

// key predicates
const (
	predRule   = "rule"
	predRuleID = "ruleid"
	predSeq    = "seq"
)

// MakeKey of a predicate and id
func MakeKey(id []byte, predicate string) []byte {
	key := []byte(predicate)
	key = append(key, byte(':'))
	key = append(key, id...)
	return key
}

// GetID of key from a pred:key
func GetID(key []byte) []byte {
	split := bytes.SplitN(key, []byte(":"), 2)
	if len(split) == 1 {
		return []byte{}
	}
	return split[1]
}

// GetPredicate from pred:key
func GetPredicate(key []byte) []byte {
	split := bytes.SplitN(key, []byte(":"), 2)
	return split[0]
}

// ruleKey orders the rules of an extension by registration sequence
func ruleKey(extensionID string, seq uint64) []byte {
	return MakeKey([]byte(fmt.Sprintf("%s:%020d", extensionID, seq)), predRule)
}

// rulePrefix of all rule records of an extension
func rulePrefix(extensionID string) []byte {
	return MakeKey([]byte(extensionID+":"), predRule)
}

// ruleIDKey maps an extension's rule id to its sequence
func ruleIDKey(extensionID, ruleID string) []byte {
	return MakeKey([]byte(extensionID+":"+ruleID), predRuleID)
}

// EncodeRule record
func EncodeRule(rule *kitt.RuleRecord) ([]byte, error) {
	return msgpack.Marshal(rule)
}

// DecodeRule record
func DecodeRule(val []byte) (*kitt.RuleRecord, error) {
	rule := &kitt.RuleRecord{}
	if err := msgpack.Unmarshal(val, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

// EncodeSeq of a rule
func EncodeSeq(seq uint64) ([]byte, error) {
	return msgpack.Marshal(seq)
}

// DecodeSeq of a rule
func DecodeSeq(val []byte) (uint64, error) {
	var seq uint64
	err := msgpack.Unmarshal(val, &seq)
	return seq, err
}
