package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

var ErrInvalidGameConfig = errors.New("config: invalid game config")

// MaxCommissionPercent bounds every commission patch.
const MaxCommissionPercent = 50

// CrashTiming drives the growth curve. It is read when a round is created.
type CrashTiming struct {
	BetDelay  time.Duration `yaml:"bet_delay" json:"betDelay"`
	BaseSpeed float64       `yaml:"base_speed" json:"baseSpeed"`
	Accel     float64       `yaml:"accel" json:"accel"`
}

type LotteryTiming struct {
	DrawDelay time.Duration `yaml:"draw_delay" json:"drawDelay"`
}

// GameConfig holds commission rates and round timings.
type GameConfig struct {
	CoinflipMultiplier       float64       `yaml:"coinflip_multiplier" json:"coinflipMultiplier"`
	DiceCommissionPercent    float64       `yaml:"dice_commission_percent" json:"diceCommissionPercent"`
	LotteryCommissionPercent float64       `yaml:"lottery_commission_percent" json:"lotteryCommissionPercent"`
	CrashCommissionPercent   float64       `yaml:"crash_commission_percent" json:"crashCommissionPercent"`
	DropMaxBalls             int           `yaml:"drop_max_balls" json:"dropMaxBalls"`
	Crash                    CrashTiming   `yaml:"crash" json:"crash"`
	Lottery                  LotteryTiming `yaml:"lottery" json:"lottery"`
}

func DefaultGameConfig() GameConfig {
	return GameConfig{
		CoinflipMultiplier:       1.95,
		DiceCommissionPercent:    2,
		LotteryCommissionPercent: 3,
		CrashCommissionPercent:   2,
		DropMaxBalls:             10,
		Crash: CrashTiming{
			BetDelay:  10 * time.Second,
			BaseSpeed: 0.05,
			Accel:     0.08,
		},
		Lottery: LotteryTiming{DrawDelay: 20 * time.Second},
	}
}

// Rate converts a percent to a fraction.
func Rate(percent float64) float64 { return percent / 100 }

// Validate checks every field against its allowed range.
func (g GameConfig) Validate() error {
	if err := checkMultiplier(g.CoinflipMultiplier); err != nil {
		return err
	}
	for name, v := range map[string]float64{
		"dice_commission_percent":    g.DiceCommissionPercent,
		"lottery_commission_percent": g.LotteryCommissionPercent,
		"crash_commission_percent":   g.CrashCommissionPercent,
	} {
		if err := checkPercent(name, v); err != nil {
			return err
		}
	}
	if g.DropMaxBalls < 1 {
		return fmt.Errorf("%w: drop_max_balls must be at least 1", ErrInvalidGameConfig)
	}
	if g.Crash.BetDelay <= 0 || g.Crash.BaseSpeed <= 0 || g.Crash.Accel <= 0 {
		return fmt.Errorf("%w: crash timing must be positive", ErrInvalidGameConfig)
	}
	if g.Lottery.DrawDelay <= 0 {
		return fmt.Errorf("%w: lottery draw_delay must be positive", ErrInvalidGameConfig)
	}
	return nil
}

func checkPercent(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v > MaxCommissionPercent {
		return fmt.Errorf("%w: %s must be within 0..%d", ErrInvalidGameConfig, name, MaxCommissionPercent)
	}
	return nil
}

func checkMultiplier(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 || v > 10 {
		return fmt.Errorf("%w: coinflip_multiplier must be within (0, 10]", ErrInvalidGameConfig)
	}
	return nil
}

// Patch is a partial update from the admin API; nil fields are left alone.
type Patch struct {
	CoinflipMultiplier       *float64 `json:"coinflipMultiplier"`
	DiceCommissionPercent    *float64 `json:"diceCommissionPercent"`
	LotteryCommissionPercent *float64 `json:"lotteryCommissionPercent"`
	CrashCommissionPercent   *float64 `json:"crashCommissionPercent"`
}

// GameStore owns the live GameConfig and persists it as YAML.
type GameStore struct {
	mu   sync.RWMutex
	path string
	cfg  GameConfig
}

// LoadGameStore reads path, writing the defaults there when the file is
// missing. An empty path keeps the config in memory.
func LoadGameStore(path string) (*GameStore, error) {
	s := &GameStore{path: path, cfg: DefaultGameConfig()}
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, s.save()
	}
	if err != nil {
		return nil, err
	}
	cfg := DefaultGameConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s.cfg = cfg
	return s, nil
}

func (s *GameStore) save() error {
	if s.path == "" {
		return nil
	}
	data, err := yaml.Marshal(s.cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0644)
}

// Get returns the current config.
func (s *GameStore) Get() GameConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Apply validates p against the current config and persists the result.
// Nothing changes when any field is out of range.
func (s *GameStore) Apply(p Patch) (GameConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.cfg
	if p.CoinflipMultiplier != nil {
		next.CoinflipMultiplier = *p.CoinflipMultiplier
	}
	if p.DiceCommissionPercent != nil {
		next.DiceCommissionPercent = *p.DiceCommissionPercent
	}
	if p.LotteryCommissionPercent != nil {
		next.LotteryCommissionPercent = *p.LotteryCommissionPercent
	}
	if p.CrashCommissionPercent != nil {
		next.CrashCommissionPercent = *p.CrashCommissionPercent
	}
	if err := next.Validate(); err != nil {
		return s.cfg, err
	}
	prev := s.cfg
	s.cfg = next
	if err := s.save(); err != nil {
		s.cfg = prev
		return prev, err
	}
	return next, nil
}
