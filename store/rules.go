package store

import (
	"os"

	badger "github.com/dgraph-io/badger/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gitlab.com/kittcore/kitt"
)

// ErrRuleNotFound returned when looking up an unknown rule
var ErrRuleNotFound = errors.New("rule not found")

// RuleStore persists declarative rules in badger, ordered per extension by the
// sequence they were first added with
type RuleStore struct {
	Store    *badger.DB
	filepath string
	seq      *badger.Sequence
}

// NewRuleStore for rule storage
func NewRuleStore(filepath string) *RuleStore {
	return &RuleStore{filepath: filepath}
}

// Init the rule storage
func (s *RuleStore) Init() error {
	var err error

	if err = os.MkdirAll(s.filepath, 0755); err != nil {
		return err
	}

	opts := badger.DefaultOptions(s.filepath)
	s.Store, err = badger.Open(opts)

	if errors.Is(err, badger.ErrTruncateNeeded) {
		log.Warn().Msg("there was a failure re-opening database, trying to recover")
		opts.Truncate = true
		s.Store, err = badger.Open(opts)
	}

	if err != nil {
		return err
	}

	s.seq, err = s.Store.GetSequence([]byte(predSeq), 100)
	return err
}

// AddRule stores the rule, a rule with the same id keeps its place in the order
func (s *RuleStore) AddRule(rule *kitt.RuleRecord) error {
	return s.Store.Update(func(txn *badger.Txn) error {
		idKey := ruleIDKey(rule.ExtensionID, rule.ID)

		seq, err := lookupSeq(txn, idKey)
		if errors.Is(err, ErrRuleNotFound) {
			if seq, err = s.seq.Next(); err != nil {
				return errors.Wrap(err, "rule sequence")
			}
			seqBytes, err := EncodeSeq(seq)
			if err != nil {
				return err
			}
			if err := txn.Set(idKey, seqBytes); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		rule.Seq = seq
		ruleBytes, err := EncodeRule(rule)
		if err != nil {
			return err
		}
		return txn.Set(ruleKey(rule.ExtensionID, seq), ruleBytes)
	})
}

// RemoveRules by id, unknown ids are ignored. nil ids removes every rule of the extension.
func (s *RuleStore) RemoveRules(extensionID string, ruleIDs []string) error {
	if ruleIDs == nil {
		return s.removeAll(extensionID)
	}

	return s.Store.Update(func(txn *badger.Txn) error {
		for _, id := range ruleIDs {
			idKey := ruleIDKey(extensionID, id)
			seq, err := lookupSeq(txn, idKey)
			if errors.Is(err, ErrRuleNotFound) {
				continue
			} else if err != nil {
				return err
			}
			if err := txn.Delete(ruleKey(extensionID, seq)); err != nil {
				return err
			}
			if err := txn.Delete(idKey); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *RuleStore) removeAll(extensionID string) error {
	return s.Store.Update(func(txn *badger.Txn) error {
		keys := make([][]byte, 0)
		for _, prefix := range [][]byte{rulePrefix(extensionID), MakeKey([]byte(extensionID+":"), predRuleID)} {
			it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
			for it.Rewind(); it.Valid(); it.Next() {
				keys = append(keys, it.Item().KeyCopy(nil))
			}
			it.Close()
		}

		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

// Rules of the extension in sequence order
func (s *RuleStore) Rules(extensionID string) ([]*kitt.RuleRecord, error) {
	rules := make([]*kitt.RuleRecord, 0)
	err := s.Store.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: rulePrefix(extensionID), PrefetchValues: true, PrefetchSize: 100})
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				rule, err := DecodeRule(val)
				if err != nil {
					return err
				}
				rules = append(rules, rule)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return rules, err
}

// Rule of the extension by id
func (s *RuleStore) Rule(extensionID, ruleID string) (*kitt.RuleRecord, error) {
	var rule *kitt.RuleRecord
	err := s.Store.View(func(txn *badger.Txn) error {
		seq, err := lookupSeq(txn, ruleIDKey(extensionID, ruleID))
		if err != nil {
			return err
		}
		item, err := txn.Get(ruleKey(extensionID, seq))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			rule, err = DecodeRule(val)
			return err
		})
	})
	return rule, err
}

// Extensions with stored rules
func (s *RuleStore) Extensions() ([]string, error) {
	extensions := make([]string, 0)
	seen := make(map[string]struct{})
	err := s.Store.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(predRuleID + ":")})
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			id := GetID(it.Item().Key())
			ext := string(GetPredicate(id))
			if _, ok := seen[ext]; !ok {
				seen[ext] = struct{}{}
				extensions = append(extensions, ext)
			}
		}
		return nil
	})
	return extensions, err
}

func lookupSeq(txn *badger.Txn, idKey []byte) (uint64, error) {
	item, err := txn.Get(idKey)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, ErrRuleNotFound
	} else if err != nil {
		return 0, err
	}

	var seq uint64
	err = item.Value(func(val []byte) error {
		seq, err = DecodeSeq(val)
		return err
	})
	return seq, err
}

// Close the rule store
func (s *RuleStore) Close() error {
	if s.seq != nil {
		if err := s.seq.Release(); err != nil {
			log.Warn().Err(err).Msg("failed to release rule sequence")
		}
	}
	return s.Store.Close()
}
