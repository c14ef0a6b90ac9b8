package games

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"

	"github.com/Ashenafi-pixel/gamecrafter-round-engine/round"
)

// Game is one catalog entry.
type Game struct {
	ID      string     `json:"game_id"`
	Name    string     `json:"name"`
	Kind    round.Kind `json:"kind"`
	Type    string     `json:"type"` // "round" or "instant"
	Enabled bool       `json:"enabled"`
}

// Builtin lists every game this server can run.
func Builtin() []Game {
	return []Game{
		{ID: string(round.KindCrash), Name: "Crash", Kind: round.KindCrash, Type: "round", Enabled: true},
		{ID: string(round.KindLottery), Name: "Lottery Wheel", Kind: round.KindLottery, Type: "round", Enabled: true},
		{ID: string(round.KindDrop), Name: "Drop", Kind: round.KindDrop, Type: "instant", Enabled: true},
		{ID: string(round.KindCoinflip), Name: "Coinflip", Kind: round.KindCoinflip, Type: "instant", Enabled: true},
		{ID: string(round.KindDice), Name: "Dice", Kind: round.KindDice, Type: "instant", Enabled: true},
	}
}

// Registry is the catalog of games and whether each is enabled.
type Registry struct {
	mu    sync.RWMutex
	games map[string]*Game
}

// NewRegistry builds the catalog from Builtin. A non-empty enabled list
// switches off every game not named in it.
func NewRegistry(enabled []string) *Registry {
	r := &Registry{games: make(map[string]*Game)}
	allow := make(map[string]bool, len(enabled))
	for _, id := range enabled {
		allow[id] = true
	}
	for _, g := range Builtin() {
		g := g
		if len(allow) > 0 {
			g.Enabled = allow[g.ID]
		}
		r.games[g.ID] = &g
	}
	return r
}

// SetEnabled toggles a known game. It reports false for unknown ids.
func (r *Registry) SetEnabled(id string, on bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.games[id]
	if !ok {
		return false
	}
	g.Enabled = on
	return true
}

func (r *Registry) Enabled(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.games[id]
	return ok && g.Enabled
}

func (r *Registry) Get(id string) (Game, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.games[id]
	if !ok {
		return Game{}, false
	}
	return *g, true
}

// List returns the enabled games sorted by id.
func (r *Registry) List() []Game {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Game, 0, len(r.games))
	for _, g := range r.games {
		if g.Enabled {
			out = append(out, *g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// LoadFromDB overlays names and enabled flags from the games table. Rows for
// games this server cannot run are ignored; it returns how many rows applied.
func (r *Registry) LoadFromDB(ctx context.Context, db *sql.DB) (int, error) {
	if db == nil {
		return 0, fmt.Errorf("no db")
	}
	rows, err := db.QueryContext(ctx, `SELECT game_id, COALESCE(name, ''), enabled FROM games WHERE status = 'ACTIVE'`)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for rows.Next() {
		var id, name string
		var enabled bool
		if err := rows.Scan(&id, &name, &enabled); err != nil {
			return n, err
		}
		g, ok := r.games[id]
		if !ok {
			continue
		}
		if name != "" {
			g.Name = name
		}
		g.Enabled = enabled
		n++
	}
	return n, rows.Err()
}
