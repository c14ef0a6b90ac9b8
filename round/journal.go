package round

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/Ashenafi-pixel/gamecrafter-round-engine/clock"

	"github.com/shopspring/decimal"
)

// Stake is a debit that has been accepted into a round but not yet settled.
type Stake struct {
	Kind      Kind            `json:"kind"`
	RoundID   string          `json:"roundId"`
	User      string          `json:"user"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Crediter pays a user back; *wallet.Ledger satisfies it.
type Crediter interface {
	Credit(ctx context.Context, user string, amount decimal.Decimal) (decimal.Decimal, error)
}

// Journal persists in-flight stakes to data/open_stakes.json so that a
// process restart can refund rounds that never settled.
type Journal struct {
	mu      sync.Mutex
	stakes  map[string]*Stake
	dataDir string
	clock   clock.Clock
}

func NewJournal(dataDir string) *Journal {
	j := &Journal{stakes: make(map[string]*Stake), dataDir: dataDir, clock: clock.Real()}
	j.load()
	return j
}

// WithClock stamps new stakes from c instead of the wall clock.
func (j *Journal) WithClock(c clock.Clock) *Journal {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.clock = c
	return j
}

func stakeKey(kind Kind, roundID, user string) string {
	return string(kind) + "/" + roundID + "/" + user
}

func (j *Journal) path() string {
	return filepath.Join(j.dataDir, "open_stakes.json")
}

func (j *Journal) load() {
	if j.dataDir == "" {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	data, err := os.ReadFile(j.path())
	if err != nil {
		return
	}
	var list []*Stake
	if err := json.Unmarshal(data, &list); err != nil {
		return
	}
	for _, s := range list {
		if s != nil && s.RoundID != "" && s.User != "" {
			j.stakes[stakeKey(s.Kind, s.RoundID, s.User)] = s
		}
	}
}

func (j *Journal) save() error {
	if j.dataDir == "" {
		return nil
	}
	list := j.sorted()
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(j.dataDir, 0755); err != nil {
		return err
	}
	return os.WriteFile(j.path(), data, 0644)
}

func (j *Journal) sorted() []*Stake {
	list := make([]*Stake, 0, len(j.stakes))
	for _, s := range j.stakes {
		list = append(list, s)
	}
	sort.Slice(list, func(a, b int) bool {
		if !list[a].CreatedAt.Equal(list[b].CreatedAt) {
			return list[a].CreatedAt.Before(list[b].CreatedAt)
		}
		return stakeKey(list[a].Kind, list[a].RoundID, list[a].User) < stakeKey(list[b].Kind, list[b].RoundID, list[b].User)
	})
	return list
}

// Open adds amount to the user's open stake in a round.
func (j *Journal) Open(kind Kind, roundID, user string, amount decimal.Decimal) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	k := stakeKey(kind, roundID, user)
	if s, ok := j.stakes[k]; ok {
		s.Amount = s.Amount.Add(amount)
	} else {
		j.stakes[k] = &Stake{Kind: kind, RoundID: roundID, User: user, Amount: amount, CreatedAt: j.clock.Now()}
	}
	return j.save()
}

// Close drops the user's open stake once it has been settled.
func (j *Journal) Close(kind Kind, roundID, user string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	k := stakeKey(kind, roundID, user)
	if _, ok := j.stakes[k]; !ok {
		return nil
	}
	delete(j.stakes, k)
	return j.save()
}

// CloseRound drops every open stake of a round.
func (j *Journal) CloseRound(kind Kind, roundID string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	n := 0
	for k, s := range j.stakes {
		if s.Kind == kind && s.RoundID == roundID {
			delete(j.stakes, k)
			n++
		}
	}
	if n == 0 {
		return nil
	}
	return j.save()
}

// Pending returns the open stakes, oldest first.
func (j *Journal) Pending() []Stake {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]Stake, 0, len(j.stakes))
	for _, s := range j.sorted() {
		out = append(out, *s)
	}
	return out
}

// Recover refunds every open stake through c and removes the ones that were
// credited. It returns the refunded stakes and the first credit error.
func (j *Journal) Recover(ctx context.Context, c Crediter) ([]Stake, error) {
	var refunded []Stake
	var firstErr error
	for _, s := range j.Pending() {
		if _, err := c.Credit(ctx, s.User, s.Amount); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		_ = j.Close(s.Kind, s.RoundID, s.User)
		refunded = append(refunded, s)
	}
	return refunded, firstErr
}
