package events

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Ashenafi-pixel/gamecrafter-round-engine/round"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captured struct {
	subject string
	data    []byte
}

type fakeConn struct {
	msgs []captured
	err  error
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, captured{subject, data})
	return nil
}

func TestPublisher_PublishesPerKindSubject(t *testing.T) {
	conn := &fakeConn{}
	p := NewPublisher(conn, "rgs.rounds")
	settled := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	res := &round.Result{
		RoundID:     "r-1",
		Kind:        round.KindCrash,
		SettledAt:   settled,
		TotalStake:  decimal.RequireFromString("100"),
		TotalPayout: decimal.RequireFromString("245"),
		Crash:       &round.CrashOutcome{CrashPoint: 3},
	}

	require.NoError(t, p.Append(round.KindCrash, res))
	require.Len(t, conn.msgs, 1)
	assert.Equal(t, "rgs.rounds.crash", conn.msgs[0].subject)

	var ev Event
	require.NoError(t, json.Unmarshal(conn.msgs[0].data, &ev))
	assert.Equal(t, EventRoundSettled, ev.Type)
	assert.Equal(t, round.KindCrash, ev.Kind)
	assert.Equal(t, settled.UnixMilli(), ev.Timestamp)
	require.NotNil(t, ev.Data)
	assert.Equal(t, "r-1", ev.Data.RoundID)
	assert.Equal(t, 3.0, ev.Data.Crash.CrashPoint)
}

func TestPublisher_WrapsPublishError(t *testing.T) {
	boom := errors.New("nats: connection closed")
	p := NewPublisher(&fakeConn{err: boom}, "rgs")
	err := p.Append(round.KindDice, &round.Result{RoundID: "x"})
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "dice")
}

func TestPublisher_TeeKeepsLocalHistory(t *testing.T) {
	conn := &fakeConn{err: errors.New("down")}
	local := round.NewResultsStore("", nil)
	sink := round.Tee(local, NewPublisher(conn, "rgs"))

	err := sink.Append(round.KindLottery, &round.Result{RoundID: "l-1"})
	assert.Error(t, err)
	_, ok := local.GetByRoundID(round.KindLottery, "l-1")
	assert.True(t, ok, "a broker outage must not lose local history")
}

func TestDecode_RoundTripsPublishedEnvelope(t *testing.T) {
	conn := &fakeConn{}
	p := NewPublisher(conn, "rgs")
	require.NoError(t, p.Append(round.KindDrop, &round.Result{RoundID: "d-1", Kind: round.KindDrop}))

	ev, err := Decode(conn.msgs[0].data)
	require.NoError(t, err)
	assert.Equal(t, round.KindDrop, ev.Kind)
	assert.Equal(t, "d-1", ev.Data.RoundID)

	_, err = Decode([]byte(`{"type":"round.opened","data":{}}`))
	assert.Error(t, err)
	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}
