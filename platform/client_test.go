package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/Ashenafi-pixel/gamecrafter-round-engine/wallet"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePlatform struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
}

func (f *fakePlatform) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer secret" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	user := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/users/"), "/balance")
	f.mu.Lock()
	defer f.mu.Unlock()
	if user == "broken" {
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "db down"})
		return
	}
	switch r.Method {
	case http.MethodGet:
		bal, ok := f.balances[user]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(balanceBody{Balance: bal})
	case http.MethodPut, http.MethodPost:
		var body balanceBody
		_ = json.NewDecoder(r.Body).Decode(&body)
		if _, ok := f.balances[user]; !ok && r.Method == http.MethodPut {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		f.balances[user] = body.Balance
		_ = json.NewEncoder(w).Encode(body)
	}
}

func TestClient_ImplementsStore(t *testing.T) {
	var _ wallet.Store = (*Client)(nil)
	var _ wallet.Registrar = (*Client)(nil)
}

func TestClient_RoundTrip(t *testing.T) {
	fp := &fakePlatform{balances: map[string]decimal.Decimal{}}
	ts := httptest.NewServer(fp)
	defer ts.Close()
	ctx := context.Background()
	c := NewClient(ts.URL, "secret")

	_, err := c.Get(ctx, "alice")
	assert.ErrorIs(t, err, wallet.ErrUserNotFound)
	assert.ErrorIs(t, c.Set(ctx, "alice", decimal.NewFromInt(1)), wallet.ErrUserNotFound)

	require.NoError(t, c.Put(ctx, "alice", decimal.RequireFromString("10.50")))
	require.NoError(t, c.Set(ctx, "alice", decimal.RequireFromString("7.25")))
	bal, err := c.Get(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.RequireFromString("7.25")), "got %s", bal)
}

func TestClient_ServerErrorIsUnavailable(t *testing.T) {
	ts := httptest.NewServer(&fakePlatform{balances: map[string]decimal.Decimal{}})
	defer ts.Close()
	c := NewClient(ts.URL, "secret")
	_, err := c.Get(context.Background(), "broken")
	assert.ErrorIs(t, err, wallet.ErrUnavailable)

	ts.Close()
	_, err = c.Get(context.Background(), "alice")
	assert.ErrorIs(t, err, wallet.ErrUnavailable)
}

func TestClient_WorksUnderLedger(t *testing.T) {
	ts := httptest.NewServer(&fakePlatform{balances: map[string]decimal.Decimal{}})
	defer ts.Close()
	ctx := context.Background()
	l := wallet.NewLedger(NewClient(ts.URL, "secret"))
	require.NoError(t, l.Register(ctx, "bob", decimal.NewFromInt(100)))
	bal, err := l.Debit(ctx, "bob", decimal.NewFromInt(25))
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.NewFromInt(75)))
}

func TestSign_OrderIndependent(t *testing.T) {
	a := url.Values{}
	a.Set("user", "alice")
	a.Set("method", "PUT")
	b := url.Values{}
	b.Set("method", "PUT")
	b.Set("user", "alice")
	assert.Equal(t, Sign("k", a), Sign("k", b))
	assert.Len(t, Sign("k", a), 64)
	assert.NotEqual(t, Sign("k", a), Sign("other", a))
}

func TestClient_SignsWhenSecretSet(t *testing.T) {
	var got []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.Header.Get(SignatureHeader))
		_ = json.NewEncoder(w).Encode(balanceBody{Balance: decimal.NewFromInt(5)})
	}))
	defer ts.Close()
	ctx := context.Background()

	_, err := NewClient(ts.URL, "").Get(ctx, "alice")
	require.NoError(t, err)
	_, err = NewClient(ts.URL, "").WithSecret("k").Get(ctx, "alice")
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Empty(t, got[0])
	assert.Equal(t, Sign("k", signedFields(http.MethodGet, "alice", nil)), got[1])
}
