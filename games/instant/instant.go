// Package instant holds the single-step games: coinflip and dice. Each play
// debits the stake, resolves immediately and credits any win.
package instant

import (
	"context"
	"log/slog"
	"math"
	"strings"

	"github.com/Ashenafi-pixel/gamecrafter-round-engine/clock"
	"github.com/Ashenafi-pixel/gamecrafter-round-engine/gamemath"
	"github.com/Ashenafi-pixel/gamecrafter-round-engine/round"
	"github.com/Ashenafi-pixel/gamecrafter-round-engine/wallet"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	Heads = "heads"
	Tails = "tails"

	Less = "less"
	More = "more"

	// DiceSides is the size of the dice roll space [0, DiceSides).
	DiceSides = 1_000_000
)

type Settings struct {
	CoinflipMultiplier float64
	DiceCommissionRate float64
}

func DefaultSettings() Settings {
	return Settings{CoinflipMultiplier: 1.95, DiceCommissionRate: 0.02}
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

type Games struct {
	clock    clock.Clock
	rand     gamemath.Rand
	ledger   *wallet.Ledger
	sink     round.Sink
	journal  *round.Journal
	log      *slog.Logger
	settings func() Settings
}

func New(opts Options) *Games {
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
	return &Games{
		clock:    opts.Clock,
		rand:     opts.Rand,
		ledger:   opts.Ledger,
		sink:     opts.Sink,
		journal:  opts.Journal,
		log:      opts.Logger,
		settings: opts.Settings,
	}
}

// Outcome is returned to the player after a play.
type Outcome struct {
	RoundID    string          `json:"roundId"`
	Result     string          `json:"result"`
	Roll       *int            `json:"roll,omitempty"`
	Win        bool            `json:"win"`
	Multiplier float64         `json:"multiplier"`
	Payout     decimal.Decimal `json:"payout"`
	Balance    decimal.Decimal `json:"newBalance"`
}

// Coinflip pays stake*CoinflipMultiplier when choice matches a fair flip.
func (g *Games) Coinflip(ctx context.Context, user string, stake decimal.Decimal, choice string) (*Outcome, error) {
	choice = strings.ToLower(strings.TrimSpace(choice))
	if choice != Heads && choice != Tails {
		return nil, round.Reject(round.InvalidInput, "choice must be heads or tails")
	}
	mult := g.settings().CoinflipMultiplier
	return g.play(ctx, round.KindCoinflip, user, stake, func() round.InstantOutcome {
		result := Tails
		if g.rand.Float64() < 0.5 {
			result = Heads
		}
		return round.InstantOutcome{Choice: choice, Result: result, Win: result == choice, Multiplier: mult}
	})
}

// DiceThreshold returns the roll boundary for percent on side. A "less" bet
// wins below it, a "more" bet at or above it; either wins on percent% of rolls.
func DiceThreshold(percent float64, side string) int {
	if side == Less {
		return int(math.Floor(percent / 100 * DiceSides))
	}
	return int(math.Floor((100 - percent) / 100 * DiceSides))
}

// DiceMultiplier is the fair multiplier for percent less commission.
func DiceMultiplier(percent, commissionRate float64) float64 {
	return 100 / percent * (1 - commissionRate)
}

// Dice rolls in [0, DiceSides) and pays when the roll falls on the chosen
// side of the threshold for percent.
func (g *Games) Dice(ctx context.Context, user string, stake decimal.Decimal, percent float64, side string) (*Outcome, error) {
	side = strings.ToLower(strings.TrimSpace(side))
	if math.IsNaN(percent) || percent < 1 || percent > 99 {
		return nil, round.Reject(round.InvalidInput, "percent must be within 1..99")
	}
	if side != Less && side != More {
		return nil, round.Reject(round.InvalidInput, "side must be less or more")
	}
	mult := DiceMultiplier(percent, g.settings().DiceCommissionRate)
	return g.play(ctx, round.KindDice, user, stake, func() round.InstantOutcome {
		roll := gamemath.Intn(g.rand, DiceSides)
		threshold := DiceThreshold(percent, side)
		win := roll >= threshold
		if side == Less {
			win = roll < threshold
		}
		// result names the side of the threshold the roll landed on
		result := side
		if !win {
			result = opposite(side)
		}
		return round.InstantOutcome{Choice: side, Result: result, Win: win, Multiplier: mult, Percent: percent, Roll: &roll}
	})
}

func opposite(side string) string {
	if side == Less {
		return More
	}
	return Less
}

func (g *Games) play(ctx context.Context, kind round.Kind, user string, stake decimal.Decimal, resolve func() round.InstantOutcome) (*Outcome, error) {
	stake = stake.Round(2)
	if !stake.IsPositive() {
		return nil, round.Reject(round.InvalidInput, "stake must be positive")
	}
	bal, err := g.ledger.Debit(ctx, user, stake)
	if err != nil {
		err = round.FromWallet(err)
		if round.KindOf(err) == round.Unavailable {
			g.log.Error("instant stake debit failed", "game", kind, "user", user, "stake", stake, "err", err)
		}
		return nil, err
	}
	id := uuid.New().String()
	if g.journal != nil {
		if jerr := g.journal.Open(kind, id, user, stake); jerr != nil {
			g.log.Warn("journal open failed", "game", kind, "round", id, "user", user, "err", jerr)
		}
	}

	out := resolve()
	p := round.Participant{User: user, Stake: stake}
	payout := decimal.Zero
	if out.Win {
		payout = stake.Mul(decimal.NewFromFloat(out.Multiplier)).Round(2)
		p.Settle(out.Multiplier, payout)
	} else {
		p.Lose()
	}

	var creditErr error
	if payout.IsPositive() {
		if bal, creditErr = g.ledger.Credit(ctx, user, payout); creditErr != nil {
			p.CreditFailed = true
			g.log.Error("instant payout credit failed", "game", kind, "user", user, "payout", payout, "err", creditErr)
		}
	}
	// A failed credit leaves the stake journaled so the next start refunds it.
	if creditErr == nil && g.journal != nil {
		_ = g.journal.CloseRound(kind, id)
	}

	if g.sink != nil {
		res := &round.Result{
			RoundID:      id,
			Kind:         kind,
			SettledAt:    g.clock.Now(),
			TotalStake:   stake,
			TotalPayout:  payout,
			Commission:   decimal.Zero,
			Participants: []round.Participant{p},
			Instant:      &out,
		}
		if err := g.sink.Append(kind, res); err != nil {
			g.log.Error("instant history append failed", "game", kind, "round", id, "err", err)
		}
	}
	if creditErr != nil {
		return nil, round.FromWallet(creditErr)
	}
	return &Outcome{
		RoundID:    id,
		Result:     out.Result,
		Roll:       out.Roll,
		Win:        out.Win,
		Multiplier: out.Multiplier,
		Payout:     payout,
		Balance:    bal,
	}, nil
}
