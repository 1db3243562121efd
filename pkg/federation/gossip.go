package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/JDRay42/semanticweft/pkg/reputation"
)

// remotePeerList is the body of a peer's GET /v1/peers response.
type remotePeerList struct {
	Peers []struct {
		NodeID     string  `json:"node_id"`
		Reputation float64 `json:"reputation"`
	} `json:"peers"`
}

// ReconcilePeerList pulls sourceNodeID's own peer list and applies the
// cross-peer reputation merge of §4.7 for every third party it names that
// this node also already tracks locally:
//
//	new_local(target) = local(target)·(1 − local(source)) + peer_claimed_rep·local(source)
//
// A target this node has never heard of has no local(target) to merge
// against and is left untouched — gossip updates existing knowledge here,
// it does not perform peer discovery.
func (p *Puller) ReconcilePeerList(ctx context.Context, sourceNodeID, sourceAPIBase, selfNodeID string) error {
	source, err := p.store.GetPeer(ctx, sourceNodeID)
	if err != nil {
		return fmt.Errorf("federation: reconcile: source peer unknown: %w", err)
	}

	list, err := p.fetchPeerList(ctx, sourceAPIBase)
	if err != nil {
		return fmt.Errorf("federation: reconcile: fetch peer list: %w", err)
	}

	for _, claim := range list.Peers {
		if claim.NodeID == "" || claim.NodeID == sourceNodeID || claim.NodeID == selfNodeID {
			continue
		}
		target, err := p.store.GetPeer(ctx, claim.NodeID)
		if err != nil {
			continue // no local baseline, nothing to merge
		}
		merged := reputation.MergeClaimedReputation(target.Reputation, source.Reputation, claim.Reputation)
		if err := p.store.UpdatePeerReputation(ctx, claim.NodeID, merged); err != nil {
			return fmt.Errorf("federation: reconcile: update %s: %w", claim.NodeID, err)
		}
	}
	return nil
}

func (p *Puller) fetchPeerList(ctx context.Context, apiBase string) (*remotePeerList, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiBase+"/v1/peers", nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("peer list status %d", resp.StatusCode)
	}
	var list remotePeerList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, err
	}
	return &list, nil
}
