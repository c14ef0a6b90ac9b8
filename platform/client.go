package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/Ashenafi-pixel/gamecrafter-round-engine/wallet"

	"github.com/shopspring/decimal"
)

// Client reads and writes balances held by the platform's user service. It
// implements wallet.Store and wallet.Registrar.
type Client struct {
	baseURL string
	token   string
	secret  string
	http    *http.Client
}

func NewClient(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:3000"
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// WithSecret signs every request with secret.
func (c *Client) WithSecret(secret string) *Client {
	c.secret = secret
	return c
}

type balanceBody struct {
	Balance decimal.Decimal `json:"balance"`
	Error   string          `json:"error,omitempty"`
}

func (c *Client) userURL(user string) string {
	return c.baseURL + "/api/users/" + url.PathEscape(user) + "/balance"
}

func (c *Client) do(ctx context.Context, method, user string, payload any) (*balanceBody, error) {
	var raw []byte
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = b
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.userURL(user), body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.secret != "" {
		req.Header.Set(SignatureHeader, Sign(c.secret, signedFields(method, user, raw)))
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", wallet.ErrUnavailable, err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", wallet.ErrUnavailable, err)
	}
	var data balanceBody
	_ = json.Unmarshal(respBody, &data)
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, wallet.ErrUserNotFound
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: platform status %d: %s", wallet.ErrUnavailable, resp.StatusCode, data.Error)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("platform: status %d: %s", resp.StatusCode, data.Error)
	}
	return &data, nil
}

// Get returns the balance of user.
func (c *Client) Get(ctx context.Context, user string) (decimal.Decimal, error) {
	data, err := c.do(ctx, http.MethodGet, user, nil)
	if err != nil {
		return decimal.Zero, err
	}
	return data.Balance, nil
}

// Set overwrites the balance of an existing user.
func (c *Client) Set(ctx context.Context, user string, amount decimal.Decimal) error {
	_, err := c.do(ctx, http.MethodPut, user, balanceBody{Balance: amount.Round(2)})
	return err
}

// Put creates the account when missing.
func (c *Client) Put(ctx context.Context, user string, amount decimal.Decimal) error {
	_, err := c.do(ctx, http.MethodPost, user, balanceBody{Balance: amount.Round(2)})
	return err
}
