package round

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
)

// Sink receives settled rounds.
type Sink interface {
	Append(kind Kind, r *Result) error
}

// DefaultCaps is the retention per kind.
var DefaultCaps = map[Kind]int{
	KindCrash:    5,
	KindLottery:  10,
	KindCoinflip: 20,
	KindDice:     20,
	KindDrop:     30,
}

// ResultsStore keeps the newest results per kind, capped, and persists them
// to data/round_results.json.
type ResultsStore struct {
	mu      sync.Mutex
	dataDir string
	caps    map[Kind]int
	lists   map[Kind][]*Result
}

// NewResultsStore loads any persisted history from dataDir. A nil caps uses
// DefaultCaps; an empty dataDir keeps history in memory only.
func NewResultsStore(dataDir string, caps map[Kind]int) *ResultsStore {
	if caps == nil {
		caps = DefaultCaps
	}
	rs := &ResultsStore{dataDir: dataDir, caps: caps, lists: make(map[Kind][]*Result)}
	rs.load()
	return rs
}

func (rs *ResultsStore) path() string {
	return filepath.Join(rs.dataDir, "round_results.json")
}

func (rs *ResultsStore) limit(kind Kind) int {
	if n, ok := rs.caps[kind]; ok && n > 0 {
		return n
	}
	return 20
}

func (rs *ResultsStore) load() {
	if rs.dataDir == "" {
		return
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	data, err := os.ReadFile(rs.path())
	if err != nil {
		return
	}
	var stored map[Kind][]*Result
	if err := json.Unmarshal(data, &stored); err != nil {
		return
	}
	for kind, list := range stored {
		if n := rs.limit(kind); len(list) > n {
			list = list[:n]
		}
		rs.lists[kind] = list
	}
}

func (rs *ResultsStore) save() error {
	if rs.dataDir == "" {
		return nil
	}
	data, err := json.MarshalIndent(rs.lists, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(rs.dataDir, 0755); err != nil {
		return err
	}
	return os.WriteFile(rs.path(), data, 0644)
}

// Append records r as the newest result of kind, dropping the oldest past the cap.
func (rs *ResultsStore) Append(kind Kind, r *Result) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	list := append([]*Result{r}, rs.lists[kind]...)
	if n := rs.limit(kind); len(list) > n {
		list = list[:n]
	}
	rs.lists[kind] = list
	return rs.save()
}

// List returns the results of kind, newest first.
func (rs *ResultsStore) List(kind Kind) []*Result {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	out := make([]*Result, len(rs.lists[kind]))
	copy(out, rs.lists[kind])
	return out
}

// Latest returns the newest result of kind.
func (rs *ResultsStore) Latest(kind Kind) (*Result, bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if l := rs.lists[kind]; len(l) > 0 {
		return l[0], true
	}
	return nil, false
}

// GetByRoundID finds a retained result by round id.
func (rs *ResultsStore) GetByRoundID(kind Kind, roundID string) (*Result, bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	for _, r := range rs.lists[kind] {
		if r.RoundID == roundID {
			return r, true
		}
	}
	return nil, false
}

type tee []Sink

// Tee fans Append out to every sink and joins their errors.
func Tee(sinks ...Sink) Sink {
	var out tee
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (t tee) Append(kind Kind, r *Result) error {
	var errs []error
	for _, s := range t {
		if err := s.Append(kind, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
