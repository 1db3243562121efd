package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/JDRay42/semanticweft/pkg/storage"
	"github.com/JDRay42/semanticweft/pkg/unit"
)

// SyncPageSize is the page size requested on every pull, §5 ("Sync pages
// are limited to 500").
const SyncPageSize = 500

type syncPage struct {
	Units   []unit.Unit `json:"units"`
	HasMore bool        `json:"has_more"`
}

// Puller runs the per-peer pull loop of §4.6 step 1-5.
type Puller struct {
	client *http.Client
	store  storage.Store
	log    hclog.Logger
}

// NewPuller builds a Puller.
func NewPuller(client *http.Client, store storage.Store, log hclog.Logger) *Puller {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Puller{client: client, store: store, log: log}
}

// PullOnce runs steps 1-5 of the pull loop once for peerNodeID/apiBase,
// fetching pages until has_more is false. It returns the number of units
// ingested.
func (p *Puller) PullOnce(ctx context.Context, peerNodeID, apiBase string) (int, error) {
	cursor, _, err := p.store.GetSyncCursor(ctx, peerNodeID)
	if err != nil {
		return 0, fmt.Errorf("federation: load cursor: %w", err)
	}

	total := 0
	for {
		page, err := p.fetchPage(ctx, apiBase, cursor)
		if err != nil {
			return total, err
		}

		lastGood := cursor
		for _, u := range page.Units {
			if err := unit.Validate(&u); err != nil {
				p.log.Warn("abandoning sync page at invalid unit", "peer", peerNodeID, "unit_id", u.ID, "error", err)
				if lastGood != cursor {
					if setErr := p.store.SetSyncCursor(ctx, peerNodeID, lastGood); setErr != nil {
						return total, setErr
					}
				}
				return total, fmt.Errorf("federation: invalid unit in sync page: %w", err)
			}

			_, err := p.store.PutUnit(ctx, &u, peerNodeID)
			if err != nil {
				// IdConflict is a recorded event, not a stall: the cursor
				// still advances past it, per §4.6 step 3b.
				p.log.Warn("sync put_unit conflict", "peer", peerNodeID, "unit_id", u.ID, "error", err)
			}
			lastGood = u.ID
			total++
		}

		if len(page.Units) > 0 {
			cursor = lastGood
			if err := p.store.SetSyncCursor(ctx, peerNodeID, cursor); err != nil {
				return total, fmt.Errorf("federation: advance cursor: %w", err)
			}
		}

		if !page.HasMore {
			return total, nil
		}
	}
}

func (p *Puller) fetchPage(ctx context.Context, apiBase string, after uuid.UUID) (*syncPage, error) {
	u := apiBase + "/v1/sync?limit=" + fmt.Sprint(SyncPageSize)
	if after != (uuid.UUID{}) {
		u += "&after=" + after.String()
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("federation: build sync request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("federation: sync request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("federation: sync status %d", resp.StatusCode)
	}

	var page syncPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("federation: decode sync page: %w", err)
	}
	return &page, nil
}

// RunForever drives PullOnce on a ticker until ctx is cancelled, sleeping
// interval between rounds that returned no more pages. Cancellation is
// cooperative: the current page always finishes before the loop exits,
// matching the node-wide shutdown posture of §5. Each round also reconciles
// this peer's claimed reputations for third parties into the local table,
// §4.7's cross-peer merge.
func (p *Puller) RunForever(ctx context.Context, peerNodeID, apiBase, selfNodeID string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := p.PullOnce(ctx, peerNodeID, apiBase); err != nil {
			p.log.Warn("sync pull failed", "peer", peerNodeID, "error", err)
		}
		if err := p.ReconcilePeerList(ctx, peerNodeID, apiBase, selfNodeID); err != nil {
			p.log.Warn("peer list reconciliation failed", "peer", peerNodeID, "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
