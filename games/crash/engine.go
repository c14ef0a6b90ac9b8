package crash

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/Ashenafi-pixel/gamecrafter-round-engine/clock"
	"github.com/Ashenafi-pixel/gamecrafter-round-engine/gamemath"
	"github.com/Ashenafi-pixel/gamecrafter-round-engine/round"
	"github.com/Ashenafi-pixel/gamecrafter-round-engine/wallet"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Settings are captured when a round is created and never change mid-round.
type Settings struct {
	BetDelay       time.Duration
	Curve          Curve
	CommissionRate float64
}

func DefaultSettings() Settings {
	return Settings{
		BetDelay:       10 * time.Second,
		Curve:          Curve{BaseSpeed: 0.05, Accel: 0.08},
		CommissionRate: 0.02,
	}
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

// Engine runs one crash round at a time. All state below is owned by loop.
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

	cur       *live
	override  *float64
	last      *round.Result
	lastUsers map[string]bool
}

type live struct {
	id           string
	settings     Settings
	crashPoint   float64
	bettingEndAt time.Time
	crashAt      time.Time
	roster       *round.Roster
	commission   decimal.Decimal
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

// Close stops the owner loop. A pending crash timer is dropped.
func (e *Engine) Close() {
	_ = e.loop.Do(context.Background(), e.sched.Cancel)
	e.loop.Close()
}

// Snapshot is the client view of the current round. The crash point is only
// revealed through Last, once the round has settled.
type Snapshot struct {
	RoundID      string              `json:"roundId,omitempty"`
	Phase        round.Phase         `json:"phase"`
	Now          time.Time           `json:"now"`
	BettingEndAt *time.Time          `json:"bettingEndAt,omitempty"`
	CrashAt      *time.Time          `json:"crashAt,omitempty"`
	Coefficient  float64             `json:"coefficient"`
	Participants []round.Participant `json:"participants"`
	Last         *round.Result       `json:"last,omitempty"`
}

type JoinResult struct {
	Snapshot Snapshot        `json:"round"`
	Balance  decimal.Decimal `json:"balance"`
}

type CashoutResult struct {
	Payout     decimal.Decimal `json:"payout"`
	Multiplier float64         `json:"multiplier"`
	Balance    decimal.Decimal `json:"newBalance"`
}

func (e *Engine) do(ctx context.Context, fn func()) error {
	if err := e.loop.Do(ctx, fn); err != nil {
		return &round.Error{Kind: round.Unavailable, Reason: "crash engine", Err: err}
	}
	return nil
}

// Join places stake for user, opening a round when none is active. A
// non-nil autoCashout replaces any previous target.
func (e *Engine) Join(ctx context.Context, user string, stake decimal.Decimal, autoCashout *float64) (*JoinResult, error) {
	var res *JoinResult
	var err error
	if derr := e.do(ctx, func() { res, err = e.join(ctx, user, stake, autoCashout) }); derr != nil {
		return nil, derr
	}
	return res, err
}

func (e *Engine) join(ctx context.Context, user string, stake decimal.Decimal, autoCashout *float64) (*JoinResult, error) {
	stake = stake.Round(2)
	if !stake.IsPositive() {
		return nil, round.Reject(round.InvalidInput, "stake must be positive")
	}
	if autoCashout != nil && !(*autoCashout > 1) {
		return nil, round.Reject(round.InvalidInput, "auto cashout must be greater than 1")
	}
	now := e.clock.Now()

	r := e.cur
	var consumed *float64
	if r == nil {
		r, consumed = e.newRound(now)
	} else if now.After(r.bettingEndAt) {
		return nil, round.Reject(round.PhaseViolation, "betting window closed")
	}

	bal, err := e.ledger.Debit(ctx, user, stake)
	if err != nil {
		if consumed != nil {
			e.override = consumed
		}
		err = round.FromWallet(err)
		if round.KindOf(err) == round.Unavailable {
			e.log.Error("crash stake debit failed", "user", user, "stake", stake, "err", err)
		}
		return nil, err
	}

	if e.cur == nil {
		e.commit(r)
	}
	if e.journal != nil {
		if jerr := e.journal.Open(round.KindCrash, r.id, user, stake); jerr != nil {
			e.log.Warn("journal open failed", "round", r.id, "user", user, "err", jerr)
		}
	}
	p, ok := r.roster.Get(user)
	if !ok {
		p = &round.Participant{User: user, Stake: decimal.Zero, Color: gamemath.Color(e.rand)}
		r.roster.Add(p)
	}
	p.Stake = p.Stake.Add(stake)
	if autoCashout != nil {
		target := *autoCashout
		p.AutoCashout = &target
	}
	e.log.Debug("crash join", "round", r.id, "user", user, "stake", stake, "total", p.Stake)
	return &JoinResult{Snapshot: e.snapshot(now), Balance: bal}, nil
}

// newRound prepares a round without committing it. It returns the consumed
// override so a failed first join can put it back.
func (e *Engine) newRound(now time.Time) (*live, *float64) {
	s := e.settings()
	var cp float64
	consumed := e.override
	if consumed != nil {
		cp = gamemath.Round2(*consumed)
		e.override = nil
	} else {
		cp = GenerateCrashPoint(e.rand)
	}
	bettingEnd := now.Add(s.BetDelay)
	return &live{
		id:           uuid.New().String(),
		settings:     s,
		crashPoint:   cp,
		bettingEndAt: bettingEnd,
		crashAt:      bettingEnd.Add(s.Curve.Duration(cp)),
		roster:       round.NewRoster(),
		commission:   decimal.Zero,
	}, consumed
}

func (e *Engine) commit(r *live) {
	e.cur = r
	e.sched.Arm(r.crashAt, e.endRound)
	e.log.Info("crash round started", "round", r.id, "bettingEndAt", r.bettingEndAt, "crashAt", r.crashAt)
}

// Cashout settles user at claimed, which must be strictly below the hidden
// crash point while the curve is growing.
func (e *Engine) Cashout(ctx context.Context, user string, claimed float64) (*CashoutResult, error) {
	var res *CashoutResult
	var err error
	if derr := e.do(ctx, func() { res, err = e.cashout(ctx, user, claimed) }); derr != nil {
		return nil, derr
	}
	return res, err
}

func (e *Engine) cashout(ctx context.Context, user string, claimed float64) (*CashoutResult, error) {
	if math.IsNaN(claimed) || math.IsInf(claimed, 0) || claimed <= 1 {
		return nil, round.Reject(round.InvalidInput, "coefficient must be greater than 1")
	}
	r := e.cur
	if r == nil {
		if e.lastUsers[user] {
			return nil, round.Reject(round.TooLate, "round already settled")
		}
		return nil, round.Reject(round.PhaseViolation, "no active round")
	}
	now := e.clock.Now()
	if now.Before(r.bettingEndAt) {
		return nil, round.Reject(round.PhaseViolation, "not growing yet")
	}
	p, ok := r.roster.Get(user)
	if !now.Before(r.crashAt) {
		if ok && !p.Settled {
			p.Lose()
		}
		return nil, round.Reject(round.TooLate, "already crashed, no payout")
	}
	if !ok {
		return nil, round.Reject(round.PhaseViolation, "not participating in this round")
	}
	if p.Settled {
		return nil, round.Reject(round.AlreadySettled, "already cashed out")
	}
	if claimed >= r.crashPoint {
		return nil, round.Reject(round.TooLate, "already crashed, no payout")
	}
	return e.settle(ctx, r, p, claimed)
}

// settle pays p at multiplier less commission. A credit the store did not
// confirm still settles p, flagged CreditFailed, so it is never paid twice.
func (e *Engine) settle(ctx context.Context, r *live, p *round.Participant, multiplier float64) (*CashoutResult, error) {
	base := p.Stake.Mul(decimal.NewFromFloat(multiplier))
	commission := base.Mul(decimal.NewFromFloat(r.settings.CommissionRate)).Round(2)
	net := base.Sub(commission).Round(2)

	bal, err := e.ledger.Credit(ctx, p.User, net)
	p.Settle(multiplier, net)
	if err != nil {
		p.CreditFailed = true
		e.log.Error("crash payout credit failed", "round", r.id, "user", p.User, "payout", net, "err", err)
		return nil, round.FromWallet(err)
	}
	r.commission = r.commission.Add(commission)
	if e.journal != nil {
		_ = e.journal.Close(round.KindCrash, r.id, p.User)
	}
	e.log.Info("crash cashout", "round", r.id, "user", p.User, "multiplier", multiplier, "payout", net)
	return &CashoutResult{Payout: net, Multiplier: multiplier, Balance: bal}, nil
}

// EvaluateAutoCashouts settles every participant whose auto target the curve
// has reached, provided the curve is still below the crash point. Settled
// participants are skipped, so repeated calls pay at most once.
func (e *Engine) EvaluateAutoCashouts(ctx context.Context) error {
	return e.do(ctx, func() { e.evaluateAuto(ctx, e.clock.Now()) })
}

func (e *Engine) evaluateAuto(ctx context.Context, now time.Time) {
	r := e.cur
	if r == nil || now.Before(r.bettingEndAt) || !now.Before(r.crashAt) {
		return
	}
	coef := r.settings.Curve.Coefficient(now.Sub(r.bettingEndAt))
	if coef >= r.crashPoint {
		return
	}
	r.roster.Each(func(p *round.Participant) {
		if p.Settled || p.AutoCashout == nil || coef < *p.AutoCashout {
			return
		}
		_, _ = e.settle(ctx, r, p, *p.AutoCashout)
	})
}

// endRound runs when the crash timer fires.
func (e *Engine) endRound() {
	r := e.cur
	if r == nil {
		return
	}
	now := e.clock.Now()

	// Auto targets only fire on state reads; anyone still open here lost.
	totalPayout := decimal.Zero
	users := make(map[string]bool, r.roster.Len())
	r.roster.Each(func(p *round.Participant) {
		if !p.Settled {
			p.Lose()
		}
		totalPayout = totalPayout.Add(p.SettledPayout)
		users[p.User] = true
	})

	res := &round.Result{
		RoundID:      r.id,
		Kind:         round.KindCrash,
		SettledAt:    now,
		TotalStake:   r.roster.Total(),
		TotalPayout:  totalPayout,
		Commission:   r.commission,
		Participants: r.roster.Snapshot(),
		Crash:        &round.CrashOutcome{CrashPoint: r.crashPoint},
	}
	if e.sink != nil {
		if err := e.sink.Append(round.KindCrash, res); err != nil {
			e.log.Error("crash history append failed", "round", r.id, "err", err)
		}
	}
	if e.journal != nil {
		_ = e.journal.CloseRound(round.KindCrash, r.id)
	}
	e.last = res
	e.lastUsers = users
	e.cur = nil
	e.log.Info("crash round ended", "round", r.id, "crashPoint", r.crashPoint,
		"players", len(users), "stake", res.TotalStake, "payout", totalPayout)
}

// State evaluates auto cashouts and returns the current snapshot.
func (e *Engine) State(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := e.do(ctx, func() {
		now := e.clock.Now()
		e.evaluateAuto(ctx, now)
		snap = e.snapshot(now)
	})
	return snap, err
}

func (e *Engine) snapshot(now time.Time) Snapshot {
	snap := Snapshot{Phase: round.PhaseIdle, Now: now, Participants: []round.Participant{}, Last: e.last}
	r := e.cur
	if r == nil {
		return snap
	}
	end := r.bettingEndAt
	snap.RoundID = r.id
	snap.BettingEndAt = &end
	snap.Participants = r.roster.Snapshot()
	switch {
	case !now.After(r.bettingEndAt):
		snap.Phase = round.PhaseAccepting
		snap.Coefficient = 1
	case now.Before(r.crashAt):
		snap.Phase = round.PhaseResolving
		crashAt := r.crashAt
		snap.CrashAt = &crashAt
		snap.Coefficient = gamemath.Round2(r.settings.Curve.Coefficient(now.Sub(r.bettingEndAt)))
	default:
		// crashed, waiting for the timer to be processed
		snap.Phase = round.PhaseSettled
		crashAt := r.crashAt
		snap.CrashAt = &crashAt
	}
	return snap
}

// SetNextCrashPoint makes the next round crash at v. A nil v clears it.
func (e *Engine) SetNextCrashPoint(ctx context.Context, v *float64) error {
	if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0) || *v <= 1) {
		return round.Reject(round.InvalidInput, "crash point must be greater than 1")
	}
	return e.do(ctx, func() {
		if v == nil {
			e.override = nil
			return
		}
		cp := *v
		e.override = &cp
	})
}

// NextCrashPoint returns the pending override, if any.
func (e *Engine) NextCrashPoint(ctx context.Context) (*float64, error) {
	var out *float64
	err := e.do(ctx, func() {
		if e.override != nil {
			v := *e.override
			out = &v
		}
	})
	return out, err
}

// Last returns the most recently settled round.
func (e *Engine) Last(ctx context.Context) (*round.Result, error) {
	var out *round.Result
	err := e.do(ctx, func() { out = e.last })
	return out, err
}
