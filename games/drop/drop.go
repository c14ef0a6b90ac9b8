// Package drop is the pachinko-style game: each ball takes rows fair
// left/right steps and lands in the bucket counted by its right steps, paying
// that bucket's calibrated multiplier.
package drop

import (
	"context"
	"log/slog"
	"strings"

	"github.com/Ashenafi-pixel/gamecrafter-round-engine/clock"
	"github.com/Ashenafi-pixel/gamecrafter-round-engine/gamemath"
	"github.com/Ashenafi-pixel/gamecrafter-round-engine/round"
	"github.com/Ashenafi-pixel/gamecrafter-round-engine/wallet"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultMaxBalls caps balls per play when no limit is configured.
const DefaultMaxBalls = 10

type Options struct {
	Clock    clock.Clock
	Rand     gamemath.Rand
	Ledger   *wallet.Ledger
	Tables   *gamemath.TableBuilder
	Sink     round.Sink
	Journal  *round.Journal
	Logger   *slog.Logger
	MaxBalls func() int
}

// Simulator plays drop rounds. It holds no per-round state; the Ledger
// serializes balance updates per user.
type Simulator struct {
	clock    clock.Clock
	rand     gamemath.Rand
	ledger   *wallet.Ledger
	tables   *gamemath.TableBuilder
	sink     round.Sink
	journal  *round.Journal
	log      *slog.Logger
	maxBalls func() int
}

func New(opts Options) *Simulator {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Rand == nil {
		opts.Rand = gamemath.Secure()
	}
	if opts.Tables == nil {
		opts.Tables = gamemath.NewTableBuilder(nil)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxBalls == nil {
		opts.MaxBalls = func() int { return DefaultMaxBalls }
	}
	return &Simulator{
		clock:    opts.Clock,
		rand:     opts.Rand,
		ledger:   opts.Ledger,
		tables:   opts.Tables,
		sink:     opts.Sink,
		journal:  opts.Journal,
		log:      opts.Logger,
		maxBalls: opts.MaxBalls,
	}
}

// Ball is one dropped ball.
type Ball struct {
	RoundID    string          `json:"roundId"`
	Bucket     int             `json:"bucket"`
	Multiplier float64         `json:"multiplier"`
	Payout     decimal.Decimal `json:"payout"`
	Path       []float64       `json:"path"`
}

type PlayResult struct {
	Risk        gamemath.Risk   `json:"risk"`
	Rows        int             `json:"rows"`
	Stake       decimal.Decimal `json:"stake"`
	TotalStake  decimal.Decimal `json:"totalStake"`
	Balls       []Ball          `json:"results"`
	TotalPayout decimal.Decimal `json:"totalPayout"`
	Balance     decimal.Decimal `json:"newBalance"`
}

// Config is the table set clients render the board from.
type Config struct {
	Risks       []gamemath.Risk                     `json:"risks"`
	Rows        []int                               `json:"rows"`
	MaxBalls    int                                 `json:"maxBalls"`
	Multipliers map[gamemath.Risk]map[int][]float64 `json:"multipliers"`
}

func (s *Simulator) Config() (Config, error) {
	cfg := Config{
		Risks:       s.tables.Risks(),
		Rows:        gamemath.Rows(),
		MaxBalls:    s.maxBalls(),
		Multipliers: make(map[gamemath.Risk]map[int][]float64),
	}
	for _, risk := range cfg.Risks {
		byRows := make(map[int][]float64, len(cfg.Rows))
		for _, rows := range cfg.Rows {
			t, err := s.tables.Table(risk, rows)
			if err != nil {
				return Config{}, err
			}
			byRows[rows] = t.Multipliers
		}
		cfg.Multipliers[risk] = byRows
	}
	return cfg, nil
}

// Fall walks one ball down rows pegs from the center. The path holds the
// horizontal position before the first step and after each step.
func Fall(r gamemath.Rand, rows int) (bucket int, path []float64) {
	x := float64(rows) / 2
	path = make([]float64, 0, rows+1)
	path = append(path, x)
	for i := 0; i < rows; i++ {
		if r.Float64() >= 0.5 {
			bucket++
			x += 0.5
		} else {
			x -= 0.5
		}
		path = append(path, x)
	}
	return bucket, path
}

// Play debits stake*count up front, drops count balls and credits the summed
// payout once. Each ball is recorded as its own round.
func (s *Simulator) Play(ctx context.Context, user string, stake decimal.Decimal, risk gamemath.Risk, rows, count int) (*PlayResult, error) {
	stake = stake.Round(2)
	if !stake.IsPositive() {
		return nil, round.Reject(round.InvalidInput, "stake must be positive")
	}
	risk = gamemath.Risk(strings.ToLower(string(risk)))
	table, err := s.tables.Table(risk, rows)
	if err != nil {
		return nil, &round.Error{Kind: round.InvalidInput, Reason: "unsupported board", Err: err}
	}
	if limit := s.maxBalls(); count < 1 || count > limit {
		return nil, round.Reject(round.InvalidInput, "ball count must be within 1..%d", limit)
	}

	totalStake := stake.Mul(decimal.NewFromInt(int64(count)))
	bal, err := s.ledger.Debit(ctx, user, totalStake)
	if err != nil {
		err = round.FromWallet(err)
		if round.KindOf(err) == round.Unavailable {
			s.log.Error("drop stake debit failed", "user", user, "stake", totalStake, "err", err)
		}
		return nil, err
	}

	playID := uuid.New().String()
	if s.journal != nil {
		if jerr := s.journal.Open(round.KindDrop, playID, user, totalStake); jerr != nil {
			s.log.Warn("journal open failed", "round", playID, "user", user, "err", jerr)
		}
	}

	res := &PlayResult{Risk: risk, Rows: rows, Stake: stake, TotalStake: totalStake, TotalPayout: decimal.Zero}
	for i := 0; i < count; i++ {
		bucket, path := Fall(s.rand, rows)
		mult := table.Multiplier(bucket)
		payout := decimal.Zero
		if mult > 0 {
			payout = stake.Mul(decimal.NewFromFloat(mult)).Round(2)
		}
		res.Balls = append(res.Balls, Ball{
			RoundID:    uuid.New().String(),
			Bucket:     bucket,
			Multiplier: mult,
			Payout:     payout,
			Path:       path,
		})
		res.TotalPayout = res.TotalPayout.Add(payout)
	}

	var creditErr error
	if res.TotalPayout.IsPositive() {
		bal, creditErr = s.ledger.Credit(ctx, user, res.TotalPayout)
		if creditErr != nil {
			s.log.Error("drop payout credit failed", "user", user, "payout", res.TotalPayout, "err", creditErr)
		}
	}
	res.Balance = bal
	s.record(user, stake, res, creditErr != nil)
	if s.journal != nil {
		_ = s.journal.CloseRound(round.KindDrop, playID)
	}
	if creditErr != nil {
		return nil, round.FromWallet(creditErr)
	}
	s.log.Debug("drop play", "user", user, "risk", risk, "rows", rows, "balls", count, "payout", res.TotalPayout)
	return res, nil
}

func (s *Simulator) record(user string, stake decimal.Decimal, res *PlayResult, creditFailed bool) {
	if s.sink == nil {
		return
	}
	now := s.clock.Now()
	for _, b := range res.Balls {
		p := round.Participant{User: user, Stake: stake}
		p.Settle(b.Multiplier, b.Payout)
		p.CreditFailed = creditFailed && b.Payout.IsPositive()
		err := s.sink.Append(round.KindDrop, &round.Result{
			RoundID:      b.RoundID,
			Kind:         round.KindDrop,
			SettledAt:    now,
			TotalStake:   stake,
			TotalPayout:  b.Payout,
			Commission:   decimal.Zero,
			Participants: []round.Participant{p},
			Drop: &round.DropOutcome{
				Risk:       string(res.Risk),
				Rows:       res.Rows,
				Bucket:     b.Bucket,
				Multiplier: b.Multiplier,
				Path:       b.Path,
			},
		})
		if err != nil {
			s.log.Error("drop history append failed", "round", b.RoundID, "err", err)
		}
	}
}
