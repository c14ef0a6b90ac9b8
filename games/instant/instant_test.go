package instant

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/Ashenafi-pixel/gamecrafter-round-engine/gamemath"
	"github.com/Ashenafi-pixel/gamecrafter-round-engine/round"
	"github.com/Ashenafi-pixel/gamecrafter-round-engine/wallet"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newGames(t *testing.T, r gamemath.Rand) (*Games, *wallet.Ledger, *round.ResultsStore) {
	t.Helper()
	ledger := wallet.NewLedger(wallet.NewMemory())
	require.NoError(t, ledger.Register(context.Background(), "alice", dec("1000")))
	results := round.NewResultsStore("", nil)
	return New(Options{Rand: r, Ledger: ledger, Sink: results}), ledger, results
}

// creditDownStore refuses balance increases while down is true; debits still land.
type creditDownStore struct {
	*wallet.Memory
	down atomic.Bool
}

func (s *creditDownStore) Set(ctx context.Context, user string, amount decimal.Decimal) error {
	if s.down.Load() {
		if cur, err := s.Memory.Get(ctx, user); err == nil && amount.GreaterThan(cur) {
			return fmt.Errorf("%w: connection reset", wallet.ErrUnavailable)
		}
	}
	return s.Memory.Set(ctx, user, amount)
}

func TestCoinflip_WinPaysMultiplier(t *testing.T) {
	ctx := context.Background()
	g, _, results := newGames(t, gamemath.Sequence(0.1))

	out, err := g.Coinflip(ctx, "alice", dec("100"), "Heads")
	require.NoError(t, err)
	assert.Equal(t, Heads, out.Result)
	assert.True(t, out.Win)
	assert.True(t, out.Payout.Equal(dec("195")))
	assert.True(t, out.Balance.Equal(dec("1095")))

	last, ok := results.Latest(round.KindCoinflip)
	require.True(t, ok)
	assert.Equal(t, out.RoundID, last.RoundID)
	assert.Equal(t, "heads", last.Instant.Choice)
}

func TestCoinflip_LossKeepsStake(t *testing.T) {
	ctx := context.Background()
	g, ledger, _ := newGames(t, gamemath.Sequence(0.7))

	out, err := g.Coinflip(ctx, "alice", dec("100"), Heads)
	require.NoError(t, err)
	assert.Equal(t, Tails, out.Result)
	assert.False(t, out.Win)
	assert.True(t, out.Payout.IsZero())

	bal, err := ledger.Balance(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, bal.Equal(dec("900")))
}

func TestCoinflip_Rejections(t *testing.T) {
	ctx := context.Background()
	g, ledger, results := newGames(t, gamemath.Sequence(0.1))

	_, err := g.Coinflip(ctx, "alice", dec("1"), "edge")
	assert.ErrorIs(t, err, round.ErrInvalidInput)
	_, err = g.Coinflip(ctx, "alice", dec("0.001"), Heads)
	assert.ErrorIs(t, err, round.ErrInvalidInput, "rounds to zero")
	_, err = g.Coinflip(ctx, "alice", dec("2000"), Heads)
	assert.ErrorIs(t, err, round.ErrInsufficientFunds)
	_, err = g.Coinflip(ctx, "nobody", dec("1"), Heads)
	assert.ErrorIs(t, err, round.ErrUnknownUser)

	bal, err := ledger.Balance(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, bal.Equal(dec("1000")))
	assert.Empty(t, results.List(round.KindCoinflip))
}

func TestDiceThreshold(t *testing.T) {
	assert.Equal(t, 250_000, DiceThreshold(25, Less))
	assert.Equal(t, 750_000, DiceThreshold(25, More))
	assert.Equal(t, 10_000, DiceThreshold(1, Less))
	assert.Equal(t, 990_000, DiceThreshold(1, More))
	assert.InDelta(t, 3.92, DiceMultiplier(25, 0.02), 1e-12)
}

func TestDice_LessAndMore(t *testing.T) {
	ctx := context.Background()

	g, _, results := newGames(t, gamemath.Sequence(0.1))
	out, err := g.Dice(ctx, "alice", dec("10"), 25, Less)
	require.NoError(t, err)
	require.NotNil(t, out.Roll)
	assert.Equal(t, 100_000, *out.Roll)
	assert.True(t, out.Win)
	assert.True(t, out.Payout.Equal(dec("39.2")), "payout %s", out.Payout)
	assert.True(t, out.Balance.Equal(dec("1029.2")))
	last, ok := results.Latest(round.KindDice)
	require.True(t, ok)
	assert.Equal(t, 25.0, last.Instant.Percent)

	g, _, _ = newGames(t, gamemath.Sequence(0.8))
	out, err = g.Dice(ctx, "alice", dec("10"), 25, More)
	require.NoError(t, err)
	assert.True(t, out.Win)
	assert.Equal(t, More, out.Result)

	out, err = g.Dice(ctx, "alice", dec("10"), 25, Less)
	require.NoError(t, err)
	assert.False(t, out.Win)
	assert.Equal(t, More, out.Result)
	assert.True(t, out.Payout.IsZero())
}

func TestDice_Rejections(t *testing.T) {
	ctx := context.Background()
	g, _, _ := newGames(t, gamemath.Sequence(0.5))
	for _, pct := range []float64{0, 0.99, 99.5, 100} {
		_, err := g.Dice(ctx, "alice", dec("1"), pct, Less)
		assert.ErrorIs(t, err, round.ErrInvalidInput, "percent %v", pct)
	}
	_, err := g.Dice(ctx, "alice", dec("1"), 50, "over")
	assert.ErrorIs(t, err, round.ErrInvalidInput)
}

func TestDice_WinRateMatchesPercent(t *testing.T) {
	r := gamemath.Secure()
	const trials = 100_000
	for _, side := range []string{Less, More} {
		threshold := DiceThreshold(30, side)
		wins := 0
		for i := 0; i < trials; i++ {
			roll := gamemath.Intn(r, DiceSides)
			if (side == Less && roll < threshold) || (side == More && roll >= threshold) {
				wins++
			}
		}
		assert.InDelta(t, 0.30, float64(wins)/trials, 0.01, side)
	}
}

func TestPlay_SettledStakesLeaveNothingJournaled(t *testing.T) {
	ctx := context.Background()
	ledger := wallet.NewLedger(wallet.NewMemory())
	require.NoError(t, ledger.Register(ctx, "alice", dec("1000")))
	journal := round.NewJournal("")
	g := New(Options{Rand: gamemath.Sequence(0.1, 0.7, 0.1), Ledger: ledger, Journal: journal})

	_, err := g.Coinflip(ctx, "alice", dec("10"), Heads) // win
	require.NoError(t, err)
	_, err = g.Coinflip(ctx, "alice", dec("10"), Heads) // loss
	require.NoError(t, err)
	_, err = g.Dice(ctx, "alice", dec("10"), 25, Less) // win
	require.NoError(t, err)
	assert.Empty(t, journal.Pending())
}

func TestPlay_FailedCreditStaysJournaledUntilRecover(t *testing.T) {
	ctx := context.Background()
	store := &creditDownStore{Memory: wallet.NewMemory()}
	ledger := wallet.NewLedger(store)
	require.NoError(t, ledger.Register(ctx, "alice", dec("1000")))
	results := round.NewResultsStore("", nil)
	journal := round.NewJournal("")
	g := New(Options{Rand: gamemath.Sequence(0.1), Ledger: ledger, Sink: results, Journal: journal})

	store.down.Store(true)
	_, err := g.Coinflip(ctx, "alice", dec("100"), Heads)
	assert.ErrorIs(t, err, round.ErrUnavailable)

	bal, err := ledger.Balance(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, bal.Equal(dec("900")), "stake debited, win not credited")

	last, ok := results.Latest(round.KindCoinflip)
	require.True(t, ok)
	require.Len(t, last.Participants, 1)
	assert.True(t, last.Participants[0].CreditFailed)

	pending := journal.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, round.KindCoinflip, pending[0].Kind)
	assert.Equal(t, last.RoundID, pending[0].RoundID)
	assert.True(t, pending[0].Amount.Equal(dec("100")))

	// next start, store back up
	store.down.Store(false)
	refunded, err := journal.Recover(ctx, ledger)
	require.NoError(t, err)
	assert.Len(t, refunded, 1)
	assert.Empty(t, journal.Pending())

	bal, err = ledger.Balance(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, bal.Equal(dec("1000")))
}
