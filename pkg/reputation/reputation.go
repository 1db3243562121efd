// Package reputation implements peer reputation voting, cross-peer merge,
// and tiered agent admission (spec.md §4.7). The arithmetic is intentionally
// kept free of storage and transport concerns — it operates on plain
// float64 reputation values and returns decisions that callers in internal/api
// apply, the same separation the teacher draws between pkg/notifications'
// RetryHandler (pure policy) and the publisher that executes it.
package reputation

import (
	"errors"
	"math"
)

// ErrMissingCallerIdentity is returned when a voting call has no caller
// node_id (X-Node-ID header absent).
var ErrMissingCallerIdentity = errors.New("reputation: missing caller identity")

// ErrCallerUnknown is returned when the caller is not in the local peer list.
var ErrCallerUnknown = errors.New("reputation: caller not a known peer")

// ErrBelowCommunityFloor is returned when the caller's reputation is below
// the community floor μ − F·σ.
var ErrBelowCommunityFloor = errors.New("reputation: caller below community floor")

// ErrSelfVote is returned when a vote targets the receiving node's own
// identity (I7).
var ErrSelfVote = errors.New("reputation: self-vote prohibited")

// DefaultReputation is assigned to a peer with no other signal, §3.
const DefaultReputation = 0.5

// CommunityFloor returns μ − F·σ over the supplied reputations, clamped to
// a minimum of 0. When σ = 0 the floor equals μ and every peer qualifies.
func CommunityFloor(reputations []float64, sigmaFactor float64) float64 {
	if len(reputations) == 0 {
		return 0
	}
	mean := Mean(reputations)
	sigma := StdDev(reputations, mean)
	floor := mean - sigmaFactor*sigma
	if floor < 0 {
		return 0
	}
	return floor
}

// Mean computes the arithmetic mean of vs.
func Mean(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}

// StdDev computes the population standard deviation of vs around mean.
func StdDev(vs []float64, mean float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	var sumSq float64
	for _, v := range vs {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(vs)))
}

// VoteRequest carries the inputs to a PATCH /v1/peers/{node_id} call.
type VoteRequest struct {
	CallerNodeID   string
	CallerKnown    bool
	CallerRep      float64
	TargetNodeID   string
	ReceivingNode  string
	ProposedRep    float64
	CurrentRep     float64
	AllLocalReps   []float64
	SigmaFactor    float64
}

// Vote validates a reputation vote against the gate of §4.7 and, if
// admitted, returns the new weighted reputation value for the target.
//
// new = current·(1 − rep(caller)) + proposed·rep(caller)
func Vote(req VoteRequest) (float64, error) {
	if req.CallerNodeID == "" {
		return 0, ErrMissingCallerIdentity
	}
	if !req.CallerKnown {
		return 0, ErrCallerUnknown
	}
	if req.TargetNodeID == req.ReceivingNode {
		return 0, ErrSelfVote
	}
	floor := CommunityFloor(req.AllLocalReps, req.SigmaFactor)
	if req.CallerRep < floor {
		return 0, ErrBelowCommunityFloor
	}
	return req.CurrentRep*(1-req.CallerRep) + req.ProposedRep*req.CallerRep, nil
}

// MergeClaimedReputation applies the cross-peer merge formula of §4.7 when
// a peer list pulled from sourceNodeID includes a claimed reputation for
// target.
//
// new_local(target) = local(target)·(1 − local(source)) + peer_claimed_rep·local(source)
func MergeClaimedReputation(localTarget, localSource, peerClaimedRep float64) float64 {
	return localTarget*(1-localSource) + peerClaimedRep*localSource
}
