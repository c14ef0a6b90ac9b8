package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Balance store backends.
const (
	StoreMemory   = "memory"
	StoreBadger   = "badger"
	StorePostgres = "postgres"
	StorePlatform = "platform"
)

type Config struct {
	RGSPort         int
	DataDir         string
	BalanceStore    string // memory, badger, postgres or platform
	BadgerDir       string
	PlatformURL     string
	PlatformToken   string
	PlatformSecret  string // signs platform balance calls when set
	NATSURL         string // empty disables result publishing
	NATSSubject     string
	AdminToken      string
	Games           []string // enabled games; empty enables all
	GameConfigPath  string
	StartingBalance float64 // balance granted by the seed command
}

func Load() *Config {
	port := 8081
	// Prefer PORT (Render, Fly.io, Railway, etc.) then RGS_PORT
	if p := os.Getenv("PORT"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			port = v
		}
	} else if p := os.Getenv("RGS_PORT"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			port = v
		}
	}
	dataDir := os.Getenv("RGS_DATA_DIR")
	if dataDir == "" {
		dataDir = "data"
	}
	store := strings.ToLower(strings.TrimSpace(os.Getenv("RGS_BALANCE_STORE")))
	if store == "" {
		store = StoreBadger
		if os.Getenv("DATABASE_URL") != "" {
			store = StorePostgres
		}
	}
	badgerDir := os.Getenv("RGS_BADGER_DIR")
	if badgerDir == "" {
		badgerDir = filepath.Join(dataDir, "balances")
	}
	platformURL := os.Getenv("PLATFORM_URL")
	if platformURL == "" {
		platformURL = "http://localhost:3000"
	}
	subject := os.Getenv("NATS_SUBJECT_PREFIX")
	if subject == "" {
		subject = "rgs.rounds"
	}
	gameConfigPath := os.Getenv("RGS_GAME_CONFIG")
	if gameConfigPath == "" {
		gameConfigPath = filepath.Join(dataDir, "game-config.yaml")
	}
	starting := 1000.0
	if v, err := strconv.ParseFloat(os.Getenv("RGS_STARTING_BALANCE"), 64); err == nil && v >= 0 {
		starting = v
	}
	return &Config{
		RGSPort:         port,
		DataDir:         dataDir,
		BalanceStore:    store,
		BadgerDir:       badgerDir,
		PlatformURL:     platformURL,
		PlatformToken:   os.Getenv("PLATFORM_TOKEN"),
		PlatformSecret:  os.Getenv("PLATFORM_SECRET"),
		NATSURL:         os.Getenv("NATS_URL"),
		NATSSubject:     subject,
		AdminToken:      os.Getenv("RGS_ADMIN_TOKEN"),
		Games:           splitList(os.Getenv("RGS_GAMES")),
		GameConfigPath:  gameConfigPath,
		StartingBalance: starting,
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}
