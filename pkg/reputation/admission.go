package reputation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/JDRay42/semanticweft/pkg/storage"
)

// ErrSponsorInvalid names the case of a sponsor_did that does not exist
// locally or is not full status. ValidateSponsor reports that case as
// valid=false with a nil error and does not return this value.
var ErrSponsorInvalid = errors.New("reputation: sponsor invalid")

// ErrSponsorProbationary names the case of a sponsor that is itself
// probationary; probationary agents MUST NOT sponsor (§4.7). ValidateSponsor
// reports that case as valid=false with a nil error and does not return
// this value.
var ErrSponsorProbationary = errors.New("reputation: sponsor is probationary")

// ValidateSponsor looks up sponsorDID via store.GetAgent and reports whether
// it may sponsor an application. An empty sponsorDID is always valid (the
// application simply has no sponsor) and returns valid=true. An unknown or
// probationary sponsor returns valid=false with a nil error; err is set
// only when the lookup itself fails.
func ValidateSponsor(ctx context.Context, store storage.Store, sponsorDID string) (valid bool, err error) {
	if sponsorDID == "" {
		return true, nil
	}
	sponsor, err := store.GetAgent(ctx, sponsorDID)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if sponsor.Status == storage.AgentStatusProbationary {
		return false, nil
	}
	return true, nil
}

// WebhookEvent is the payload posted to SWEFT_OPERATOR_WEBHOOK on every
// self-service admission, §4.7.
type WebhookEvent struct {
	Event        string `json:"event"`
	NodeID       string `json:"node_id"`
	Agent        string `json:"agent"`
	SponsorDID   string `json:"sponsor_did,omitempty"`
	SponsorValid bool   `json:"sponsor_valid"`
}

// NotifyOperatorWebhook posts a single attempt to webhookURL. Failures are
// logged by the caller (who holds the node's logger) and never retried, per
// spec.md §4.7 — mirroring the teacher's DLQ-on-exhaustion posture but
// without the retry phase, since this delivery is explicitly best-effort.
func NotifyOperatorWebhook(ctx context.Context, client *http.Client, webhookURL string, event WebhookEvent) error {
	if webhookURL == "" {
		return nil
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("reputation: marshal webhook event: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("reputation: build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("reputation: webhook delivery: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("reputation: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
