// Package lottery runs the weighted-stake wheel: players queue stakes, and
// once two distinct players are in, a draw is scheduled that pays the whole
// pot, less commission, to one winner chosen in proportion to stake.
package lottery

import (
	"context"
	"log/slog"
	"time"

	"github.com/Ashenafi-pixel/gamecrafter-round-engine/clock"
	"github.com/Ashenafi-pixel/gamecrafter-round-engine/gamemath"
	"github.com/Ashenafi-pixel/gamecrafter-round-engine/round"
	"github.com/Ashenafi-pixel/gamecrafter-round-engine/wallet"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MinPlayers is the number of distinct players a draw needs.
const MinPlayers = 2

type Settings struct {
	DrawDelay      time.Duration
	CommissionRate float64
}

func DefaultSettings() Settings {
	return Settings{DrawDelay: 20 * time.Second, CommissionRate: 0.03}
}

type Options struct {
	Clock    clock.Clock
	Rand     gamemath.Rand
	Ledger   *wallet.Ledger
	Sink     round.Sink
	Journal  *round.Journal
	Logger   *slog.Logger
	Settings func() Settings
}

// Engine owns the lottery queue. All state below is touched only on loop.
type Engine struct {
	loop     *round.Loop
	sched    *round.Schedule
	clock    clock.Clock
	rand     gamemath.Rand
	ledger   *wallet.Ledger
	sink     round.Sink
	journal  *round.Journal
	log      *slog.Logger
	settings func() Settings

	cur  *queue
	last *round.Result
}

type queue struct {
	id       string
	settings Settings
	roster   *round.Roster
	drawAt   time.Time
}

func New(opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Rand == nil {
		opts.Rand = gamemath.Secure()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Settings == nil {
		opts.Settings = DefaultSettings
	}
	loop := round.NewLoop()
	return &Engine{
		loop:     loop,
		sched:    round.NewSchedule(opts.Clock, loop),
		clock:    opts.Clock,
		rand:     opts.Rand,
		ledger:   opts.Ledger,
		sink:     opts.Sink,
		journal:  opts.Journal,
		log:      opts.Logger,
		settings: opts.Settings,
	}
}

// Close stops the loop. Queued stakes stay in the journal for Recover.
func (e *Engine) Close() {
	_ = e.loop.Do(context.Background(), e.sched.Cancel)
	e.loop.Close()
}

type Snapshot struct {
	RoundID      string              `json:"roundId,omitempty"`
	Phase        round.Phase         `json:"phase"`
	Now          time.Time           `json:"now"`
	DrawAt       *time.Time          `json:"drawAt,omitempty"`
	Total        decimal.Decimal     `json:"total"`
	Participants []round.Participant `json:"participants"`
	Last         *round.Result       `json:"last,omitempty"`
}

type JoinResult struct {
	Snapshot Snapshot        `json:"round"`
	Balance  decimal.Decimal `json:"balance"`
}

func (e *Engine) do(ctx context.Context, fn func()) error {
	if err := e.loop.Do(ctx, fn); err != nil {
		return &round.Error{Kind: round.Unavailable, Reason: "lottery engine", Err: err}
	}
	return nil
}

// Join debits stake and adds it to the user's position in the queue.
func (e *Engine) Join(ctx context.Context, user string, stake decimal.Decimal) (*JoinResult, error) {
	var res *JoinResult
	var err error
	if derr := e.do(ctx, func() { res, err = e.join(ctx, user, stake) }); derr != nil {
		return nil, derr
	}
	return res, err
}

func (e *Engine) join(ctx context.Context, user string, stake decimal.Decimal) (*JoinResult, error) {
	stake = stake.Round(2)
	if !stake.IsPositive() {
		return nil, round.Reject(round.InvalidInput, "stake must be positive")
	}
	bal, err := e.ledger.Debit(ctx, user, stake)
	if err != nil {
		err = round.FromWallet(err)
		if round.KindOf(err) == round.Unavailable {
			e.log.Error("lottery stake debit failed", "user", user, "stake", stake, "err", err)
		}
		return nil, err
	}

	q := e.cur
	if q == nil {
		q = &queue{id: uuid.New().String(), settings: e.settings(), roster: round.NewRoster()}
		e.cur = q
	}
	if e.journal != nil {
		if jerr := e.journal.Open(round.KindLottery, q.id, user, stake); jerr != nil {
			e.log.Warn("journal open failed", "round", q.id, "user", user, "err", jerr)
		}
	}
	p, ok := q.roster.Get(user)
	if !ok {
		p = &round.Participant{User: user, Stake: decimal.Zero, Color: gamemath.Color(e.rand)}
		q.roster.Add(p)
	}
	p.Stake = p.Stake.Add(stake)

	now := e.clock.Now()
	if q.roster.Len() == MinPlayers && !e.sched.Pending() {
		q.drawAt = now.Add(q.settings.DrawDelay)
		e.sched.Arm(q.drawAt, e.draw)
		e.log.Info("lottery draw scheduled", "round", q.id, "drawAt", q.drawAt)
	}
	e.log.Debug("lottery join", "round", q.id, "user", user, "stake", stake, "total", p.Stake)
	return &JoinResult{Snapshot: e.snapshot(now), Balance: bal}, nil
}

// draw runs when the timer fires.
func (e *Engine) draw() {
	q := e.cur
	if q == nil {
		return
	}
	ctx := context.Background()
	e.cur = nil

	var res *round.Result
	if q.roster.Len() < MinPlayers {
		res = e.void(ctx, q)
	} else {
		res = e.settle(ctx, q)
	}
	if e.sink != nil {
		if err := e.sink.Append(round.KindLottery, res); err != nil {
			e.log.Error("lottery history append failed", "round", q.id, "err", err)
		}
	}
	if e.journal != nil {
		_ = e.journal.CloseRound(round.KindLottery, q.id)
	}
	e.last = res
	// No join can land mid-draw, so the queue is empty here and the next
	// second player arms the following draw.
}

func (e *Engine) settle(ctx context.Context, q *queue) *round.Result {
	entries := make([]gamemath.Entry, 0, q.roster.Len())
	q.roster.Each(func(p *round.Participant) {
		entries = append(entries, gamemath.Entry{ID: p.User, Weight: p.Stake.InexactFloat64()})
	})
	idx, ticket := gamemath.WeightedDraw(e.rand, entries)
	total := q.roster.Total()
	commission := total.Mul(decimal.NewFromFloat(q.settings.CommissionRate)).Round(2)
	payout := total.Sub(commission).Round(2)

	winner := entries[idx].ID
	q.roster.Each(func(p *round.Participant) {
		if p.User != winner {
			p.Lose()
			return
		}
		mult, _ := payout.Div(p.Stake).Round(2).Float64()
		p.Settle(mult, payout)
		if _, err := e.ledger.Credit(ctx, p.User, payout); err != nil {
			p.CreditFailed = true
			e.log.Error("lottery payout credit failed", "round", q.id, "user", p.User, "payout", payout, "err", err)
		}
	})
	e.log.Info("lottery drawn", "round", q.id, "winner", winner, "ticket", ticket, "total", total, "payout", payout)
	return &round.Result{
		RoundID:      q.id,
		Kind:         round.KindLottery,
		SettledAt:    e.clock.Now(),
		TotalStake:   total,
		TotalPayout:  payout,
		Commission:   commission,
		Participants: q.roster.Snapshot(),
		Lottery:      &round.LotteryOutcome{Winner: winner, Ticket: ticket, Payout: payout},
	}
}

// void clears a round that cannot be drawn. There is no winner, but each
// queued stake is credited back in full rather than dropped with the queue,
// so the result's TotalPayout equals the refunded amount.
func (e *Engine) void(ctx context.Context, q *queue) *round.Result {
	refunded := decimal.Zero
	q.roster.Each(func(p *round.Participant) {
		p.Settle(1, p.Stake)
		if _, err := e.ledger.Credit(ctx, p.User, p.Stake); err != nil {
			p.CreditFailed = true
			e.log.Error("lottery refund failed", "round", q.id, "user", p.User, "amount", p.Stake, "err", err)
			return
		}
		refunded = refunded.Add(p.Stake)
	})
	e.log.Info("lottery voided", "round", q.id, "players", q.roster.Len(), "refunded", refunded)
	return &round.Result{
		RoundID:      q.id,
		Kind:         round.KindLottery,
		SettledAt:    e.clock.Now(),
		TotalStake:   q.roster.Total(),
		TotalPayout:  refunded,
		Commission:   decimal.Zero,
		Participants: q.roster.Snapshot(),
		Lottery:      &round.LotteryOutcome{Voided: true},
	}
}

// State returns the queue and the last draw.
func (e *Engine) State(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := e.do(ctx, func() { snap = e.snapshot(e.clock.Now()) })
	return snap, err
}

func (e *Engine) snapshot(now time.Time) Snapshot {
	snap := Snapshot{Phase: round.PhaseIdle, Now: now, Total: decimal.Zero, Participants: []round.Participant{}, Last: e.last}
	q := e.cur
	if q == nil {
		return snap
	}
	snap.RoundID = q.id
	snap.Phase = round.PhaseAccepting
	snap.Total = q.roster.Total()
	snap.Participants = q.roster.Snapshot()
	if e.sched.Pending() {
		at := q.drawAt
		snap.DrawAt = &at
	}
	return snap
}

func (e *Engine) Last(ctx context.Context) (*round.Result, error) {
	var out *round.Result
	err := e.do(ctx, func() { out = e.last })
	return out, err
}
