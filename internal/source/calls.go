package source

import "fmt"

type callKey struct {
	source     string
	capability Capability
}

// CallStore remembers which (source, capability) pairs were attempted in a
// session and whether they succeeded. It is owned by a single Session and is
// not safe for concurrent use.
type CallStore struct {
	calls map[callKey]bool
}

func NewCallStore() *CallStore {
	return &CallStore{calls: make(map[callKey]bool)}
}

func (s *CallStore) HasBeenCalled(source string, c Capability) bool {
	_, ok := s.calls[callKey{source, c}]
	return ok
}

// Record stores the outcome, replacing any earlier one.
func (s *CallStore) Record(source string, c Capability, ok bool) {
	s.calls[callKey{source, c}] = ok
}

// Status returns the recorded outcome. Check HasBeenCalled first.
func (s *CallStore) Status(source string, c Capability) (bool, error) {
	ok, found := s.calls[callKey{source, c}]
	if !found {
		return false, fmt.Errorf("%w: %s/%s", ErrCallNotRecorded, source, c)
	}
	return ok, nil
}

// Len returns the number of recorded pairs.
func (s *CallStore) Len() int {
	return len(s.calls)
}
