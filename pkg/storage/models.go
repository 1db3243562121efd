package storage

import (
	"time"

	"github.com/google/uuid"
)

// unitRecord is the gorm-mapped row for a stored Semantic Unit. The
// canonical bytes are kept alongside parsed facets used for filtering, per
// spec.md §6 ("units (keyed by id, storing canonical bytes + parsed facets
// for filtering)").
type unitRecord struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	CanonicalBytes  []byte    `gorm:"type:blob;not null"`
	RawJSON         []byte    `gorm:"type:blob;not null"`
	Type            string    `gorm:"type:varchar(20);index:idx_units_type"`
	Author          string    `gorm:"type:varchar(512);index:idx_units_author"`
	CreatedAt       time.Time `gorm:"index:idx_units_created_at"`
	Visibility      string    `gorm:"type:varchar(20);index:idx_units_visibility"`
	LearnedFromPeer string    `gorm:"type:varchar(512)"`
}

func (unitRecord) TableName() string { return "units" }

// unitAudienceRecord stores the audience list of limited units, one row per
// DID. Nothing in this package queries it yet; may_read checks read the
// audience from the deserialized unit.
type unitAudienceRecord struct {
	UnitID uuid.UUID `gorm:"type:uuid;primaryKey"`
	DID    string    `gorm:"type:varchar(512);primaryKey;index:idx_audience_did"`
}

func (unitAudienceRecord) TableName() string { return "unit_audience" }

// unitReferenceRecord materializes each unit's references edges so Subgraph
// can traverse both directions without deserializing every candidate unit
// (spec.md §4.2 subgraph, §9 "explicit visited set keyed by id").
type unitReferenceRecord struct {
	UnitID   uuid.UUID `gorm:"type:uuid;primaryKey;index:idx_ref_unit"`
	TargetID uuid.UUID `gorm:"type:uuid;primaryKey;index:idx_ref_target"`
	Rel      string    `gorm:"type:varchar(20)"`
}

func (unitReferenceRecord) TableName() string { return "unit_references" }

// agentRecord, §3 AgentProfile.
type agentRecord struct {
	DID               string `gorm:"type:varchar(512);primaryKey"`
	InboxURL          string `gorm:"type:text"`
	DisplayName       string `gorm:"type:varchar(256)"`
	PublicKey         string `gorm:"type:text"`
	Status            string `gorm:"type:varchar(20);not null;default:'full'"`
	ContributionCount int    `gorm:"not null;default:0"`
}

func (agentRecord) TableName() string { return "agents" }

// followRecord, §3 FollowEdge.
type followRecord struct {
	FollowerDID string    `gorm:"type:varchar(512);primaryKey"`
	TargetDID   string    `gorm:"type:varchar(512);primaryKey;index:idx_follow_target"`
	RecordedAt  time.Time `gorm:"not null"`
}

func (followRecord) TableName() string { return "follows" }

// peerRecord, §3 PeerInfo.
type peerRecord struct {
	NodeID     string     `gorm:"type:varchar(512);primaryKey"`
	APIBase    string     `gorm:"type:text;not null"`
	Reputation float64    `gorm:"not null;default:0.5"`
	LastSeen   *time.Time
}

func (peerRecord) TableName() string { return "peers" }

// inboxRecord, §3 InboxEntry.
type inboxRecord struct {
	OwnerDID    string    `gorm:"type:varchar(512);primaryKey;index:idx_inbox_owner"`
	UnitID      uuid.UUID `gorm:"type:uuid;primaryKey"`
	DeliveredAt time.Time `gorm:"not null"`
	RawJSON     []byte    `gorm:"type:blob;not null"`
}

func (inboxRecord) TableName() string { return "inbox" }

// cursorRecord, §3 SyncCursor.
type cursorRecord struct {
	PeerNodeID string    `gorm:"type:varchar(512);primaryKey"`
	LastUnitID uuid.UUID `gorm:"type:uuid;not null"`
}

func (cursorRecord) TableName() string { return "sync_cursors" }

// settingsRecord holds node identity and other singleton process state, per
// spec.md §6 ("Node keypair and DID persist in a dedicated settings table").
type settingsRecord struct {
	Key   string `gorm:"type:varchar(128);primaryKey"`
	Value string `gorm:"type:text;not null"`
}

func (settingsRecord) TableName() string { return "settings" }

// modelsToAutoMigrate lists every table GORM should create, mirroring the
// teacher's pkg/models.ModelsToAutoMigrate.
func modelsToAutoMigrate() []interface{} {
	return []interface{}{
		&unitRecord{},
		&unitAudienceRecord{},
		&unitReferenceRecord{},
		&agentRecord{},
		&followRecord{},
		&peerRecord{},
		&inboxRecord{},
		&cursorRecord{},
		&settingsRecord{},
	}
}
