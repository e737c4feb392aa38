// Package session stores the wallet connected to each chat or CLI session.
// The pipeline never reads it; callers resolve a session to an explicit owner
// address before starting a run.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/withObsrvr/obsrvr-meme-minter/internal/chain"
)

// ErrNotConnected is returned when a session has no connected wallet.
var ErrNotConnected = errors.New("no wallet connected")

// Session binds a session id to a wallet address.
type Session struct {
	ID          string    `json:"id"`
	Wallet      string    `json:"wallet"`
	ConnectedAt time.Time `json:"connected_at"`
}

// Store is a key-value store of sessions keyed by session id.
type Store interface {
	Get(ctx context.Context, id string) (Session, error)
	Set(ctx context.Context, s Session) error
	Delete(ctx context.Context, id string) error
	Close() error
}

// Config selects a backend.
type Config struct {
	Backend       string // "memory" | "file" | "redis"
	File          string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	TTL           time.Duration
}

// Open returns the configured store.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "file":
		return NewFileStore(cfg.File)
	case "redis":
		return NewRedisStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.Backend)
	}
}

// Connect validates wallet, normalizes it to checksummed form and stores it
// under id.
func Connect(ctx context.Context, store Store, id, wallet string, now time.Time) (Session, error) {
	if strings.TrimSpace(id) == "" {
		return Session{}, errors.New("session id is required")
	}
	addr, ok := chain.ParseAddress(wallet)
	if !ok {
		return Session{}, fmt.Errorf("invalid wallet address %q", wallet)
	}
	s := Session{ID: id, Wallet: addr.Hex(), ConnectedAt: now.UTC()}
	if err := store.Set(ctx, s); err != nil {
		return Session{}, err
	}
	return s, nil
}
