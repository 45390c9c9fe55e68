package relay

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrEmptyPool is returned when no relay in the consensus passes the
// capability filter. A run cannot start without candidates.
var ErrEmptyPool = errors.New("no relays match the capability filter")

// Common consensus flags.
const (
	FlagFast    = "Fast"
	FlagStable  = "Stable"
	FlagValid   = "Valid"
	FlagRunning = "Running"
	FlagGuard   = "Guard"
)

// ID is a relay identity fingerprint: 40 upper-case hex characters.
type ID string

// String returns the fingerprint.
func (id ID) String() string {
	return string(id)
}

// Status is one router status entry from the consensus.
type Status struct {
	// Nickname is the relay's self-chosen name. It is not unique.
	Nickname string

	// ID is the relay's identity fingerprint.
	ID ID

	// Flags are the flags the directory authorities assigned to the relay.
	Flags []string
}

// HasFlags reports whether the status carries every flag in flags.
func (s Status) HasFlags(flags []string) bool {
	for _, f := range flags {
		if !slices.Contains(s.Flags, f) {
			return false
		}
	}
	return true
}

// Pool is the set of relays eligible for sampling in one run.
// It holds each ID once and must not be modified after construction.
type Pool []ID

// NewPool returns a pool holding each of ids once, in first-seen order.
func NewPool(ids []ID) Pool {
	seen := make(map[ID]struct{}, len(ids))
	pool := make(Pool, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		pool = append(pool, id)
	}
	return pool
}

// Filter returns the pool of relays in statuses that advertise every flag
// in flags. An empty flag set admits every relay.
func Filter(statuses []Status, flags []string) Pool {
	ids := make([]ID, 0, len(statuses))
	for _, s := range statuses {
		if s.HasFlags(flags) {
			ids = append(ids, s.ID)
		}
	}
	return NewPool(ids)
}

// StatusSource returns the router status entries of the current consensus.
type StatusSource interface {
	NetworkStatuses(ctx context.Context) ([]Status, error)
}

// Directory builds the relay pool from a StatusSource.
type Directory struct {
	source StatusSource
	flags  []string
}

// NewDirectory returns a Directory that admits relays advertising all of
// flags.
func NewDirectory(source StatusSource, flags []string) *Directory {
	return &Directory{
		source: source,
		flags:  slices.Clone(flags),
	}
}

// ListRelays fetches the consensus and returns the eligible pool.
// It returns ErrEmptyPool when nothing matches.
func (d *Directory) ListRelays(ctx context.Context) (Pool, error) {
	statuses, err := d.source.NetworkStatuses(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch network statuses: %w", err)
	}

	pool := Filter(statuses, d.flags)
	if len(pool) == 0 {
		return nil, fmt.Errorf("%w (flags: %s, relays in consensus: %d)",
			ErrEmptyPool, strings.Join(d.flags, ","), len(statuses))
	}
	return pool, nil
}
