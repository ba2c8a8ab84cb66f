package ingestion

import (
	"sort"
	"sync"
)

type outcome int

const (
	outcomeSucceeded outcome = iota
	outcomeDuplicate
	outcomeInvalidPhone
	outcomeFailed
)

func (o outcome) String() string {
	switch o {
	case outcomeSucceeded:
		return "succeeded"
	case outcomeDuplicate:
		return "duplicate"
	case outcomeInvalidPhone:
		return "invalid_phone"
	case outcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// outcomes collects one terminal outcome per externalId from concurrent workers
type outcomes struct {
	mu   sync.Mutex
	byID map[string]outcome
}

func newOutcomes(size int) *outcomes {
	return &outcomes{byID: make(map[string]outcome, size)}
}

func (o *outcomes) record(externalID string, result outcome) {
	o.mu.Lock()
	o.byID[externalID] = result
	o.mu.Unlock()
}

type summary struct {
	succeeded    int
	duplicates   []string
	invalidPhone []string
	failed       []string
}

// summarize groups the ids by bucket. Slices are non-nil so the ledger always
// receives every outcome field.
func (o *outcomes) summarize() summary {
	o.mu.Lock()
	defer o.mu.Unlock()

	s := summary{
		duplicates:   []string{},
		invalidPhone: []string{},
		failed:       []string{},
	}
	for id, result := range o.byID {
		switch result {
		case outcomeSucceeded:
			s.succeeded++
		case outcomeDuplicate:
			s.duplicates = append(s.duplicates, id)
		case outcomeInvalidPhone:
			s.invalidPhone = append(s.invalidPhone, id)
		case outcomeFailed:
			s.failed = append(s.failed, id)
		}
	}
	sort.Strings(s.duplicates)
	sort.Strings(s.invalidPhone)
	sort.Strings(s.failed)
	return s
}
