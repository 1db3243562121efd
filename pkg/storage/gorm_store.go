package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/JDRay42/semanticweft/pkg/unit"
)

// gormStore implements Store over any gorm dialect. It is the single
// implementation behind both the durable Postgres backend and the
// file-backed/in-memory SQLite backend — "pluggable backend... with
// identical semantics" by construction rather than by parallel code paths.
type gormStore struct {
	db  *gorm.DB
	log hclog.Logger
}

// OpenPostgres connects to a durable Postgres-backed store.
func OpenPostgres(dsn string, log hclog.Logger) (Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: newGormLogger(log)})
	if err != nil {
		return nil, fmt.Errorf("storage: open postgres: %w", err)
	}
	return newGormStore(db, log)
}

// OpenSQLite connects to a SQLite-backed store. Passing ":memory:" yields
// the in-memory backend; any other path yields the durable file-backed
// backend. Both satisfy the same Store contract through the same code.
func OpenSQLite(path string, log hclog.Logger) (Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: newGormLogger(log)})
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite: %w", err)
	}
	if path == ":memory:" {
		// SQLite's :memory: DSN is per-connection; force gorm to a single
		// pooled connection so the schema and data persist across calls.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("storage: sqlite pool: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return newGormStore(db, log)
}

func newGormStore(db *gorm.DB, log hclog.Logger) (Store, error) {
	if err := db.AutoMigrate(modelsToAutoMigrate()...); err != nil {
		return nil, fmt.Errorf("storage: automigrate: %w", err)
	}
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &gormStore{db: db, log: log}, nil
}

func (s *gormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// PutUnit implements the Created/AlreadyExists/IdConflict contract of §4.2
// and enforces I1 (id immutability).
func (s *gormStore) PutUnit(ctx context.Context, u *unit.Unit, learnedFrom string) (PutResult, error) {
	canonical, err := unit.Canonicalize(u)
	if err != nil {
		return 0, fmt.Errorf("storage: canonicalize: %w", err)
	}
	raw, err := json.Marshal(u)
	if err != nil {
		return 0, fmt.Errorf("storage: marshal: %w", err)
	}

	var result PutResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing unitRecord
		err := tx.First(&existing, "id = ?", u.ID.String()).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			rec := unitRecord{
				ID:              u.ID,
				CanonicalBytes:  canonical,
				RawJSON:         raw,
				Type:            string(u.Type),
				Author:          u.Author,
				CreatedAt:       u.CreatedAt,
				Visibility:      string(u.Visibility.Effective()),
				LearnedFromPeer: learnedFrom,
			}
			if err := tx.Create(&rec).Error; err != nil {
				return fmt.Errorf("storage: insert unit: %w", err)
			}
			if err := insertAudience(tx, u); err != nil {
				return err
			}
			if err := insertReferences(tx, u); err != nil {
				return err
			}
			result = Created
			return nil
		case err != nil:
			return fmt.Errorf("storage: lookup unit: %w", err)
		}

		if string(existing.CanonicalBytes) == string(canonical) {
			result = AlreadyExists
			return nil
		}
		return ErrIDConflict
	})
	if err != nil {
		return 0, err
	}
	return result, nil
}

func insertAudience(tx *gorm.DB, u *unit.Unit) error {
	if len(u.Audience) == 0 {
		return nil
	}
	rows := make([]unitAudienceRecord, 0, len(u.Audience))
	for _, did := range u.Audience {
		rows = append(rows, unitAudienceRecord{UnitID: u.ID, DID: did})
	}
	if err := tx.Create(&rows).Error; err != nil {
		return fmt.Errorf("storage: insert audience: %w", err)
	}
	return nil
}

func insertReferences(tx *gorm.DB, u *unit.Unit) error {
	if len(u.References) == 0 {
		return nil
	}
	rows := make([]unitReferenceRecord, 0, len(u.References))
	for _, ref := range u.References {
		rows = append(rows, unitReferenceRecord{UnitID: u.ID, TargetID: ref.ID, Rel: string(ref.Rel)})
	}
	if err := tx.Create(&rows).Error; err != nil {
		return fmt.Errorf("storage: insert references: %w", err)
	}
	return nil
}

func (s *gormStore) GetUnit(ctx context.Context, id uuid.UUID) (*StoredUnit, error) {
	var rec unitRecord
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", id.String()).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage: get unit: %w", err)
	}
	return recordToStoredUnit(&rec)
}

func recordToStoredUnit(rec *unitRecord) (*StoredUnit, error) {
	var u unit.Unit
	if err := json.Unmarshal(rec.RawJSON, &u); err != nil {
		return nil, fmt.Errorf("storage: decode stored unit: %w", err)
	}
	return &StoredUnit{Unit: u, LearnedFrom: rec.LearnedFromPeer}, nil
}

// ListUnits returns units in ascending id order (I4), ANDing every supplied
// filter predicate. Visibility filtering beyond what UnitFilter encodes is
// the caller's responsibility (pkg/visibility) — §4.5 notes pages may
// contain fewer than limit items even when hasMore is true, since that
// filter is applied after pagination cursor resolution.
func (s *gormStore) ListUnits(ctx context.Context, filter UnitFilter, after uuid.UUID, limit int) ([]StoredUnit, bool, error) {
	q := s.db.WithContext(ctx).Model(&unitRecord{}).Order("id ASC")
	q = applyUnitFilter(q, filter)
	if after != (uuid.UUID{}) {
		q = q.Where("id > ?", after.String())
	}

	var recs []unitRecord
	if err := q.Limit(limit + 1).Find(&recs).Error; err != nil {
		return nil, false, fmt.Errorf("storage: list units: %w", err)
	}

	hasMore := len(recs) > limit
	if hasMore {
		recs = recs[:limit]
	}
	out := make([]StoredUnit, 0, len(recs))
	for i := range recs {
		su, err := recordToStoredUnit(&recs[i])
		if err != nil {
			return nil, false, err
		}
		out = append(out, *su)
	}
	return out, hasMore, nil
}

func applyUnitFilter(q *gorm.DB, filter UnitFilter) *gorm.DB {
	if len(filter.Types) > 0 {
		types := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			types[i] = string(t)
		}
		q = q.Where("type IN ?", types)
	}
	if filter.Author != "" {
		q = q.Where("author = ?", filter.Author)
	}
	if !filter.Since.IsZero() {
		q = q.Where("created_at >= ?", filter.Since)
	}
	return q
}

// Subgraph performs a breadth-first traversal in both directions along
// references edges, visiting only locally-held units, per §4.2/§9.
func (s *gormStore) Subgraph(ctx context.Context, root uuid.UUID, depth int) ([]unit.Unit, error) {
	if depth <= 0 {
		depth = -1 // unbounded
	}
	visited := map[uuid.UUID]bool{root: true}
	frontier := []uuid.UUID{root}
	var out []unit.Unit

	if rootRec, err := s.GetUnit(ctx, root); err == nil {
		out = append(out, rootRec.Unit)
	} else if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	} else {
		return nil, err
	}

	for level := 0; len(frontier) > 0 && (depth < 0 || level < depth); level++ {
		var next []uuid.UUID
		neighbors, err := s.neighbors(ctx, frontier)
		if err != nil {
			return nil, err
		}
		for _, n := range neighbors {
			if visited[n] {
				continue
			}
			visited[n] = true
			rec, err := s.GetUnit(ctx, n)
			if errors.Is(err, ErrNotFound) {
				continue // unknown references silently skipped
			}
			if err != nil {
				return nil, err
			}
			out = append(out, rec.Unit)
			next = append(next, n)
		}
		frontier = next
	}
	return out, nil
}

func (s *gormStore) neighbors(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	strIDs := make([]string, len(ids))
	for i, id := range ids {
		strIDs[i] = id.String()
	}
	var forward []unitReferenceRecord
	if err := s.db.WithContext(ctx).Where("unit_id IN ?", strIDs).Find(&forward).Error; err != nil {
		return nil, fmt.Errorf("storage: forward references: %w", err)
	}
	var backward []unitReferenceRecord
	if err := s.db.WithContext(ctx).Where("target_id IN ?", strIDs).Find(&backward).Error; err != nil {
		return nil, fmt.Errorf("storage: backward references: %w", err)
	}
	seen := map[uuid.UUID]bool{}
	var out []uuid.UUID
	for _, r := range forward {
		if !seen[r.TargetID] {
			seen[r.TargetID] = true
			out = append(out, r.TargetID)
		}
	}
	for _, r := range backward {
		if !seen[r.UnitID] {
			seen[r.UnitID] = true
			out = append(out, r.UnitID)
		}
	}
	return out, nil
}

// Agents

func (s *gormStore) UpsertAgent(ctx context.Context, a *AgentProfile) error {
	rec := agentRecord{
		DID: a.DID, InboxURL: a.InboxURL, DisplayName: a.DisplayName,
		PublicKey: a.PublicKey, Status: a.Status, ContributionCount: a.ContributionCount,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "did"}},
		UpdateAll: true,
	}).Create(&rec).Error
}

func (s *gormStore) GetAgent(ctx context.Context, did string) (*AgentProfile, error) {
	var rec agentRecord
	if err := s.db.WithContext(ctx).First(&rec, "did = ?", did).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage: get agent: %w", err)
	}
	return &AgentProfile{
		DID: rec.DID, InboxURL: rec.InboxURL, DisplayName: rec.DisplayName,
		PublicKey: rec.PublicKey, Status: rec.Status, ContributionCount: rec.ContributionCount,
	}, nil
}

func (s *gormStore) DeleteAgent(ctx context.Context, did string) error {
	return s.db.WithContext(ctx).Delete(&agentRecord{}, "did = ?", did).Error
}

// IncrementContribution records a contribution and atomically graduates the
// agent to full status once the threshold is reached (§4.7).
func (s *gormStore) IncrementContribution(ctx context.Context, did string, graduationThreshold int) (*AgentProfile, error) {
	var out AgentProfile
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec agentRecord
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&rec, "did = ?", did).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		rec.ContributionCount++
		if rec.Status == AgentStatusProbationary && rec.ContributionCount >= graduationThreshold {
			rec.Status = AgentStatusFull
		}
		if err := tx.Save(&rec).Error; err != nil {
			return err
		}
		out = AgentProfile{
			DID: rec.DID, InboxURL: rec.InboxURL, DisplayName: rec.DisplayName,
			PublicKey: rec.PublicKey, Status: rec.Status, ContributionCount: rec.ContributionCount,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Follow graph

func (s *gormStore) Follow(ctx context.Context, follower, target string) error {
	rec := followRecord{FollowerDID: follower, TargetDID: target, RecordedAt: time.Now().UTC()}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rec).Error
}

func (s *gormStore) Unfollow(ctx context.Context, follower, target string) error {
	return s.db.WithContext(ctx).Delete(&followRecord{}, "follower_did = ? AND target_did = ?", follower, target).Error
}

func (s *gormStore) ListFollowing(ctx context.Context, follower string, after string, limit int) ([]string, bool, error) {
	q := s.db.WithContext(ctx).Model(&followRecord{}).Where("follower_did = ?", follower).Order("target_did ASC")
	if after != "" {
		q = q.Where("target_did > ?", after)
	}
	var recs []followRecord
	if err := q.Limit(limit + 1).Find(&recs).Error; err != nil {
		return nil, false, err
	}
	hasMore := len(recs) > limit
	if hasMore {
		recs = recs[:limit]
	}
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.TargetDID
	}
	return out, hasMore, nil
}

func (s *gormStore) ListFollowers(ctx context.Context, target string, after string, limit int) ([]string, bool, error) {
	q := s.db.WithContext(ctx).Model(&followRecord{}).Where("target_did = ?", target).Order("follower_did ASC")
	if after != "" {
		q = q.Where("follower_did > ?", after)
	}
	var recs []followRecord
	if err := q.Limit(limit + 1).Find(&recs).Error; err != nil {
		return nil, false, err
	}
	hasMore := len(recs) > limit
	if hasMore {
		recs = recs[:limit]
	}
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.FollowerDID
	}
	return out, hasMore, nil
}

// Inbox

func (s *gormStore) AppendInbox(ctx context.Context, did string, u *unit.Unit) error {
	raw, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("storage: marshal inbox unit: %w", err)
	}
	rec := inboxRecord{OwnerDID: did, UnitID: u.ID, DeliveredAt: time.Now().UTC(), RawJSON: raw}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rec).Error
}

func (s *gormStore) ReadInbox(ctx context.Context, did string, after uuid.UUID, limit int) ([]unit.Unit, bool, error) {
	q := s.db.WithContext(ctx).Model(&inboxRecord{}).Where("owner_did = ?", did).Order("unit_id ASC")
	if after != (uuid.UUID{}) {
		q = q.Where("unit_id > ?", after.String())
	}
	var recs []inboxRecord
	if err := q.Limit(limit + 1).Find(&recs).Error; err != nil {
		return nil, false, err
	}
	hasMore := len(recs) > limit
	if hasMore {
		recs = recs[:limit]
	}
	out := make([]unit.Unit, 0, len(recs))
	for _, r := range recs {
		var u unit.Unit
		if err := json.Unmarshal(r.RawJSON, &u); err != nil {
			return nil, false, err
		}
		out = append(out, u)
	}
	return out, hasMore, nil
}

// Peers

func (s *gormStore) UpsertPeer(ctx context.Context, p *PeerInfo, maxPeers int) (string, error) {
	var evicted string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing peerRecord
		err := tx.First(&existing, "node_id = ?", p.NodeID).Error
		if err == nil {
			return tx.Model(&existing).Updates(map[string]interface{}{
				"api_base":  p.APIBase,
				"last_seen": p.LastSeen,
			}).Error
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		var count int64
		if err := tx.Model(&peerRecord{}).Count(&count).Error; err != nil {
			return err
		}
		if int(count) >= maxPeers {
			victim, err := lowestReputationPeer(tx)
			if err != nil {
				return err
			}
			if victim != "" {
				if err := tx.Delete(&peerRecord{}, "node_id = ?", victim).Error; err != nil {
					return err
				}
				evicted = victim
			}
		}

		rep := p.Reputation
		if rep == 0 {
			rep = 0.5
		}
		rec := peerRecord{NodeID: p.NodeID, APIBase: p.APIBase, Reputation: rep, LastSeen: p.LastSeen}
		return tx.Create(&rec).Error
	})
	return evicted, err
}

// lowestReputationPeer implements the eviction tiebreak of §4.7: lowest
// reputation, then oldest last_seen.
func lowestReputationPeer(tx *gorm.DB) (string, error) {
	var rec peerRecord
	err := tx.Order("reputation ASC").Order("last_seen ASC NULLS FIRST").First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return rec.NodeID, nil
}

func (s *gormStore) GetPeer(ctx context.Context, nodeID string) (*PeerInfo, error) {
	var rec peerRecord
	if err := s.db.WithContext(ctx).First(&rec, "node_id = ?", nodeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &PeerInfo{NodeID: rec.NodeID, APIBase: rec.APIBase, Reputation: rec.Reputation, LastSeen: rec.LastSeen}, nil
}

func (s *gormStore) ListPeers(ctx context.Context) ([]PeerInfo, error) {
	var recs []peerRecord
	if err := s.db.WithContext(ctx).Order("node_id ASC").Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]PeerInfo, len(recs))
	for i, r := range recs {
		out[i] = PeerInfo{NodeID: r.NodeID, APIBase: r.APIBase, Reputation: r.Reputation, LastSeen: r.LastSeen}
	}
	return out, nil
}

func (s *gormStore) UpdatePeerReputation(ctx context.Context, nodeID string, newReputation float64) error {
	return s.db.WithContext(ctx).Model(&peerRecord{}).Where("node_id = ?", nodeID).Update("reputation", newReputation).Error
}

func (s *gormStore) TouchPeerLastSeen(ctx context.Context, nodeID string, when time.Time) error {
	return s.db.WithContext(ctx).Model(&peerRecord{}).Where("node_id = ?", nodeID).Update("last_seen", when).Error
}

// Sync cursors

func (s *gormStore) GetSyncCursor(ctx context.Context, peerNodeID string) (uuid.UUID, bool, error) {
	var rec cursorRecord
	err := s.db.WithContext(ctx).First(&rec, "peer_node_id = ?", peerNodeID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return uuid.UUID{}, false, nil
	}
	if err != nil {
		return uuid.UUID{}, false, err
	}
	return rec.LastUnitID, true, nil
}

// SetSyncCursor advances the persisted cursor for peerNodeID, called by the
// federation pull loop once per processed page, or at the last stored unit
// when a page is abandoned (spec.md §4.2, §5).
func (s *gormStore) SetSyncCursor(ctx context.Context, peerNodeID string, id uuid.UUID) error {
	rec := cursorRecord{PeerNodeID: peerNodeID, LastUnitID: id}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "peer_node_id"}},
		UpdateAll: true,
	}).Create(&rec).Error
}

// Settings

func (s *gormStore) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var rec settingsRecord
	err := s.db.WithContext(ctx).First(&rec, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return rec.Value, true, nil
}

func (s *gormStore) SetSetting(ctx context.Context, key, value string) error {
	rec := settingsRecord{Key: key, Value: value}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		UpdateAll: true,
	}).Create(&rec).Error
}
