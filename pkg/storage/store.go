// Package storage implements the durable keyed record store for units,
// agents, follow edges, peers, inbox entries, and sync cursors (spec.md
// §4.2). One gorm-backed implementation satisfies the Store interface
// against either a Postgres or SQLite driver — including SQLite's
// `:memory:` DSN — so "pluggable backend... with identical semantics" holds
// by construction rather than by parallel maintenance of two codebases.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/JDRay42/semanticweft/pkg/unit"
)

// PutResult reports what happened to a put_unit call, §4.2.
type PutResult int

const (
	Created PutResult = iota
	AlreadyExists
)

// ErrIDConflict is returned by PutUnit when id is already stored with a
// byte-different canonical image (I1).
var ErrIDConflict = errors.New("storage: id conflict")

// ErrNotFound is returned by lookups that find nothing.
var ErrNotFound = errors.New("storage: not found")

// UnitFilter ANDs the supplied Types, Author and Since predicates, §4.2.
type UnitFilter struct {
	Types        []unit.Type
	Author       string
	Since        time.Time
	RequesterDID string
	// IncludeNonPublic and RequesterDID are carried on the filter but
	// ListUnits does not consult either; list/sync callers narrow the
	// result by visibility themselves through pkg/visibility.
	IncludeNonPublic bool
}

// StoredUnit pairs a parsed unit with the peer it was learned from, if any
// (loop prevention, spec.md §4.6).
type StoredUnit struct {
	Unit        unit.Unit
	LearnedFrom string // peer node_id, empty if locally authored
}

// AgentProfile, §3. PublicKey is informational only — DID is a did:key and
// already self-encodes the agent's Ed25519 public key; signature
// verification decodes DID directly rather than this field.
type AgentProfile struct {
	DID               string
	InboxURL          string
	DisplayName       string
	PublicKey         string
	Status            string // "full" | "probationary"
	ContributionCount int
}

const (
	AgentStatusFull         = "full"
	AgentStatusProbationary = "probationary"
)

// PeerInfo, §3.
type PeerInfo struct {
	NodeID     string
	APIBase    string
	Reputation float64
	LastSeen   *time.Time
}

// InboxEntry, §3.
type InboxEntry struct {
	OwnerDID   string
	UnitID     uuid.UUID
	DeliveredAt time.Time
}

// Store is the storage contract every backend implements, §4.2.
type Store interface {
	// Units
	PutUnit(ctx context.Context, u *unit.Unit, learnedFrom string) (PutResult, error)
	GetUnit(ctx context.Context, id uuid.UUID) (*StoredUnit, error)
	ListUnits(ctx context.Context, filter UnitFilter, after uuid.UUID, limit int) (units []StoredUnit, hasMore bool, err error)
	Subgraph(ctx context.Context, root uuid.UUID, depth int) ([]unit.Unit, error)

	// Agents
	UpsertAgent(ctx context.Context, a *AgentProfile) error
	GetAgent(ctx context.Context, did string) (*AgentProfile, error)
	DeleteAgent(ctx context.Context, did string) error
	IncrementContribution(ctx context.Context, did string, graduationThreshold int) (*AgentProfile, error)

	// Follow graph
	Follow(ctx context.Context, follower, target string) error
	Unfollow(ctx context.Context, follower, target string) error
	ListFollowing(ctx context.Context, follower string, after string, limit int) ([]string, bool, error)
	ListFollowers(ctx context.Context, target string, after string, limit int) ([]string, bool, error)

	// Inbox
	AppendInbox(ctx context.Context, did string, u *unit.Unit) error
	ReadInbox(ctx context.Context, did string, after uuid.UUID, limit int) ([]unit.Unit, bool, error)

	// Peers
	UpsertPeer(ctx context.Context, p *PeerInfo, maxPeers int) (evicted string, err error)
	GetPeer(ctx context.Context, nodeID string) (*PeerInfo, error)
	ListPeers(ctx context.Context) ([]PeerInfo, error)
	UpdatePeerReputation(ctx context.Context, nodeID string, newReputation float64) error
	TouchPeerLastSeen(ctx context.Context, nodeID string, when time.Time) error

	// Sync cursors
	GetSyncCursor(ctx context.Context, peerNodeID string) (uuid.UUID, bool, error)
	SetSyncCursor(ctx context.Context, peerNodeID string, id uuid.UUID) error

	// Node settings (the persisted identity seed)
	GetSetting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error

	Close() error
}
