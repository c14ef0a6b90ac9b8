// Package round holds what every round engine shares: phases, participants,
// settlement records, the rejection taxonomy, the single-owner loop and the
// single pending timer.
package round

import (
	"time"

	"github.com/shopspring/decimal"
)

// Phase is the lifecycle position of a live round.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseAccepting Phase = "accepting"
	PhaseResolving Phase = "resolving"
	PhaseSettled   Phase = "settled"
)

// Kind names a game for history and journaling.
type Kind string

const (
	KindCrash    Kind = "crash"
	KindLottery  Kind = "lottery"
	KindDrop     Kind = "drop"
	KindCoinflip Kind = "coinflip"
	KindDice     Kind = "dice"
)

// Kinds lists every game kind.
var Kinds = []Kind{KindCrash, KindLottery, KindDrop, KindCoinflip, KindDice}

// Participant is one user's position in a round.
type Participant struct {
	User              string          `json:"user"`
	Stake             decimal.Decimal `json:"stake"`
	Color             string          `json:"color"`
	Settled           bool            `json:"settled"`
	SettledMultiplier *float64        `json:"settledMultiplier"`
	SettledPayout     decimal.Decimal `json:"settledPayout"`
	AutoCashout       *float64        `json:"autoCashout,omitempty"`
	// CreditFailed marks a payout the Balance Store did not confirm.
	CreditFailed bool `json:"creditFailed,omitempty"`
}

// Settle marks p paid at multiplier.
func (p *Participant) Settle(multiplier float64, payout decimal.Decimal) {
	m := multiplier
	p.Settled = true
	p.SettledMultiplier = &m
	p.SettledPayout = payout
}

// Lose finalizes p with no payout.
func (p *Participant) Lose() {
	p.Settled = true
	p.SettledMultiplier = nil
	p.SettledPayout = decimal.Zero
}

// Clone returns a deep copy safe to hand outside the owner loop.
func (p *Participant) Clone() Participant {
	c := *p
	if p.SettledMultiplier != nil {
		v := *p.SettledMultiplier
		c.SettledMultiplier = &v
	}
	if p.AutoCashout != nil {
		v := *p.AutoCashout
		c.AutoCashout = &v
	}
	return c
}

// Roster keeps participants unique per user in join order.
type Roster struct {
	order []string
	byID  map[string]*Participant
}

func NewRoster() *Roster {
	return &Roster{byID: make(map[string]*Participant)}
}

// Get returns the participant for user.
func (r *Roster) Get(user string) (*Participant, bool) {
	p, ok := r.byID[user]
	return p, ok
}

// Add inserts p unless the user is already present.
func (r *Roster) Add(p *Participant) {
	if _, ok := r.byID[p.User]; ok {
		return
	}
	r.order = append(r.order, p.User)
	r.byID[p.User] = p
}

func (r *Roster) Len() int { return len(r.order) }

// Each visits participants in join order.
func (r *Roster) Each(fn func(*Participant)) {
	for _, u := range r.order {
		fn(r.byID[u])
	}
}

// Total sums every stake.
func (r *Roster) Total() decimal.Decimal {
	total := decimal.Zero
	r.Each(func(p *Participant) { total = total.Add(p.Stake) })
	return total
}

// Snapshot copies the roster in join order.
func (r *Roster) Snapshot() []Participant {
	out := make([]Participant, 0, len(r.order))
	r.Each(func(p *Participant) { out = append(out, p.Clone()) })
	return out
}

// Result is one settled round, as written to history.
type Result struct {
	RoundID      string          `json:"roundId"`
	Kind         Kind            `json:"kind"`
	SettledAt    time.Time       `json:"settledAt"`
	TotalStake   decimal.Decimal `json:"totalStake"`
	TotalPayout  decimal.Decimal `json:"totalPayout"`
	Commission   decimal.Decimal `json:"commission"`
	Participants []Participant   `json:"participants"`

	Crash   *CrashOutcome   `json:"crash,omitempty"`
	Lottery *LotteryOutcome `json:"lottery,omitempty"`
	Drop    *DropOutcome    `json:"drop,omitempty"`
	Instant *InstantOutcome `json:"instant,omitempty"`
}

type CrashOutcome struct {
	CrashPoint float64 `json:"crashPoint"`
}

type LotteryOutcome struct {
	Winner string          `json:"winner,omitempty"`
	Ticket float64         `json:"ticket"`
	Payout decimal.Decimal `json:"payout"`
	Voided bool            `json:"voided,omitempty"`
}

type DropOutcome struct {
	Risk       string    `json:"risk"`
	Rows       int       `json:"rows"`
	Bucket     int       `json:"bucket"`
	Multiplier float64   `json:"multiplier"`
	Path       []float64 `json:"path"`
}

type InstantOutcome struct {
	Choice     string  `json:"choice"`
	Result     string  `json:"result"`
	Win        bool    `json:"win"`
	Multiplier float64 `json:"multiplier"`
	// dice only
	Percent float64 `json:"percent,omitempty"`
	Roll    *int    `json:"roll,omitempty"`
}
