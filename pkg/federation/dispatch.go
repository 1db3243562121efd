package federation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"

	"github.com/JDRay42/semanticweft/pkg/identity"
	"github.com/JDRay42/semanticweft/pkg/storage"
	"github.com/JDRay42/semanticweft/pkg/unit"
)

// MaxDeliveryAttempts bounds the exponential-backoff retry before a
// delivery is declared permanently failed, §4.6.
const MaxDeliveryAttempts = 6

// PublicPushSampleSize bounds how many known peers receive an optimistic
// push for a public unit.
const PublicPushSampleSize = 5

// FollowerLookup resolves the home node of a local follower, consulting a
// registered profile first and falling back to WebFinger for remote DIDs.
type FollowerLookup func(ctx context.Context, followerDID string) (inboxURL string, err error)

// Dispatcher implements the fan-out of §4.6: public optimistic push,
// network delivery to followers' home inboxes, limited delivery to
// audience DIDs via WebFinger.
type Dispatcher struct {
	store      storage.Store
	identity   *identity.KeyPair
	client     *http.Client
	resolver   *Resolver
	log        hclog.Logger
	selfHost   string
	followerOf FollowerLookup
}

// NewDispatcher builds a Dispatcher. followerOf resolves a local follower's
// inbox URL (nil uses the resolver for every lookup).
func NewDispatcher(store storage.Store, kp *identity.KeyPair, client *http.Client, resolver *Resolver, log hclog.Logger, selfHost string, followerOf FollowerLookup) *Dispatcher {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Dispatcher{store: store, identity: kp, client: client, resolver: resolver, log: log, selfHost: selfHost, followerOf: followerOf}
}

// Dispatch routes u according to its visibility. learnedFrom is the peer
// node_id u was learned from, if any; the optimistic push for public units
// must never push back to that peer (loop prevention, §4.6).
func (d *Dispatcher) Dispatch(ctx context.Context, u *unit.Unit, learnedFrom string) error {
	switch u.Visibility.Effective() {
	case unit.VisibilityPublic:
		return d.dispatchPublic(ctx, u, learnedFrom)
	case unit.VisibilityNetwork:
		return d.dispatchNetwork(ctx, u)
	case unit.VisibilityLimited:
		return d.dispatchLimited(ctx, u)
	default:
		return nil
	}
}

func (d *Dispatcher) dispatchPublic(ctx context.Context, u *unit.Unit, learnedFrom string) error {
	peers, err := d.store.ListPeers(ctx)
	if err != nil {
		return fmt.Errorf("federation: list peers for push: %w", err)
	}

	var merr *multierror.Error
	sent := 0
	for _, p := range peers {
		if sent >= PublicPushSampleSize {
			break
		}
		if p.NodeID == learnedFrom {
			continue // loop prevention
		}
		if err := d.pushUnit(ctx, p.APIBase+"/v1/units", u); err != nil {
			d.log.Warn("optimistic push failed, pull loop will cover the gap", "peer", p.NodeID, "unit_id", u.ID, "error", err)
			merr = multierror.Append(merr, err)
			continue
		}
		sent++
	}
	return merr.ErrorOrNil()
}

func (d *Dispatcher) dispatchNetwork(ctx context.Context, u *unit.Unit) error {
	followers, _, err := d.store.ListFollowers(ctx, u.Author, "", 10000)
	if err != nil {
		return fmt.Errorf("federation: list followers: %w", err)
	}

	var merr *multierror.Error
	for _, followerDID := range followers {
		inboxURL, err := d.resolveFollowerInbox(ctx, followerDID)
		if err != nil {
			merr = multierror.Append(merr, err)
			continue
		}
		if err := d.deliverWithRetry(ctx, inboxURL, u, followerDID); err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	return merr.ErrorOrNil()
}

func (d *Dispatcher) dispatchLimited(ctx context.Context, u *unit.Unit) error {
	var merr *multierror.Error
	for _, did := range u.Audience {
		inboxURL, err := d.resolver.Resolve(ctx, did, d.selfHost)
		if err != nil {
			merr = multierror.Append(merr, err)
			continue
		}
		if err := d.deliverWithRetry(ctx, inboxURL, u, did); err != nil {
			d.resolver.Invalidate(did)
			merr = multierror.Append(merr, err)
		}
	}
	return merr.ErrorOrNil()
}

func (d *Dispatcher) resolveFollowerInbox(ctx context.Context, followerDID string) (string, error) {
	if d.followerOf != nil {
		if url, err := d.followerOf(ctx, followerDID); err == nil && url != "" {
			return url, nil
		}
	}
	return d.resolver.Resolve(ctx, followerDID, d.selfHost)
}

// deliverWithRetry POSTs u to inboxURL, retrying with exponential backoff
// up to MaxDeliveryAttempts. On permanent failure it emits a notifies unit
// into the author's inbox, §4.6.
func (d *Dispatcher) deliverWithRetry(ctx context.Context, inboxURL string, u *unit.Unit, recipientDID string) error {
	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), MaxDeliveryAttempts-1)
	operation := func() error {
		return d.pushUnit(ctx, inboxURL, u)
	}

	err := backoff.Retry(operation, backoff.WithContext(bo, ctx))
	if err != nil {
		d.log.Warn("delivery permanently failed", "recipient", recipientDID, "unit_id", u.ID, "error", err)
		return d.emitFailureNotice(ctx, u, recipientDID, err)
	}
	return nil
}

// emitFailureNotice stores a notifies-typed unit into the original unit's
// author's inbox reporting the permanent delivery failure, §4.6.
func (d *Dispatcher) emitFailureNotice(ctx context.Context, original *unit.Unit, recipientDID string, deliveryErr error) error {
	author := identity.DIDFromPublicKey(d.identity.Public)
	notice := &unit.Unit{
		ID:        unit.NewUUIDv7(),
		Type:      unit.TypeAssertion,
		Content:   fmt.Sprintf("delivery of unit %s to %s failed permanently: %v", original.ID, recipientDID, deliveryErr),
		CreatedAt: time.Now().UTC(),
		Author:    author,
		References: []unit.Reference{
			{ID: original.ID, Rel: unit.RelNotifies},
		},
		// limited to the author: this is node-internal delivery bookkeeping,
		// not a claim for the public graph (§4.5).
		Visibility: unit.VisibilityLimited,
		Audience:   []string{original.Author},
	}
	if _, err := d.store.PutUnit(ctx, notice, ""); err != nil {
		return fmt.Errorf("federation: store failure notice: %w", err)
	}
	return d.store.AppendInbox(ctx, original.Author, notice)
}

func (d *Dispatcher) pushUnit(ctx context.Context, targetURL string, u *unit.Unit) error {
	body, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("federation: marshal unit: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, targetURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("federation: build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Host = req.URL.Host
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))

	sigHeaders := []string{"(request-target)", "host", "date", "digest"}
	digest, err := identity.ComputeDigestHeader(body)
	if err != nil {
		return fmt.Errorf("federation: compute digest: %w", err)
	}
	req.Header.Set("Digest", digest)

	signingStr, err := identity.SigningString(req, sigHeaders)
	if err != nil {
		return fmt.Errorf("federation: build signing string: %w", err)
	}
	sig, err := identity.SignRaw(d.identity, []byte(signingStr))
	if err != nil {
		return fmt.Errorf("federation: sign push request: %w", err)
	}
	req.Header.Set("Signature", identity.FormatSignatureHeader(identity.DIDFromPublicKey(d.identity.Public), sigHeaders, sig))

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("federation: push request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusConflict {
		return fmt.Errorf("federation: push returned status %d", resp.StatusCode)
	}
	return nil
}
