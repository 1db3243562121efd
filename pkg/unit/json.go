package unit

import (
	"encoding/json"
	"fmt"
)

// knownTopLevelFields enumerates the Unit's schema-defined JSON members.
// Anything else must match the extension name pattern or the document is
// invalid ("no extraneous top-level fields").
var knownTopLevelFields = map[string]bool{
	"id": true, "type": true, "content": true, "created_at": true,
	"author": true, "confidence": true, "assumptions": true, "source": true,
	"references": true, "visibility": true, "audience": true, "proof": true,
}

// unitAlias mirrors Unit's schema fields without the custom MarshalJSON/
// UnmarshalJSON below, avoiding infinite recursion.
type unitAlias struct {
	ID          interface{} `json:"id"`
	Type        Type        `json:"type"`
	Content     string      `json:"content"`
	CreatedAt   interface{} `json:"created_at"`
	Author      string      `json:"author"`
	Confidence  *float64    `json:"confidence,omitempty"`
	Assumptions []string    `json:"assumptions,omitempty"`
	Source      *RawSource  `json:"source,omitempty"`
	References  []Reference `json:"references,omitempty"`
	Visibility  Visibility  `json:"visibility,omitempty"`
	Audience    []string    `json:"audience,omitempty"`
	Proof       *Proof      `json:"proof,omitempty"`
}

// UnmarshalJSON decodes a Unit, routing any `x-foo.bar`-shaped member into
// Extensions and rejecting any other unrecognized top-level member.
func (u *Unit) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var alias unitAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}

	ext := map[string]any{}
	for k, v := range raw {
		if knownTopLevelFields[k] {
			continue
		}
		if !ValidExtensionName(k) {
			return fmt.Errorf("unit: unrecognized field %q", k)
		}
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			return fmt.Errorf("unit: extension field %q: %w", k, err)
		}
		ext[k] = val
	}

	idStr, _ := raw["id"]
	if len(idStr) > 0 {
		var s string
		if err := json.Unmarshal(idStr, &s); err != nil {
			return fmt.Errorf("unit: id must be a string: %w", err)
		}
		id, err := parseUUID(s)
		if err != nil {
			return fmt.Errorf("unit: invalid id: %w", err)
		}
		u.ID = id
	}

	createdStr, _ := raw["created_at"]
	if len(createdStr) > 0 {
		var s string
		if err := json.Unmarshal(createdStr, &s); err != nil {
			return fmt.Errorf("unit: created_at must be a string: %w", err)
		}
		t, err := parseTimestamp(s)
		if err != nil {
			return fmt.Errorf("unit: invalid created_at: %w", err)
		}
		u.CreatedAt = t
		u.createdAtRaw = s
	}

	u.Type = alias.Type
	u.Content = alias.Content
	u.Author = alias.Author
	u.Confidence = alias.Confidence
	u.Assumptions = alias.Assumptions
	u.Source = alias.Source
	u.References = alias.References
	u.Visibility = alias.Visibility
	u.Audience = alias.Audience
	u.Proof = alias.Proof
	if len(ext) > 0 {
		u.Extensions = ext
	}
	return nil
}

// MarshalJSON encodes a Unit, folding Extensions back into top-level
// members.
func (u Unit) MarshalJSON() ([]byte, error) {
	createdAt := u.createdAtRaw
	if createdAt == "" {
		createdAt = formatTimestamp(u.CreatedAt)
	}
	alias := unitAlias{
		ID:          u.ID.String(),
		Type:        u.Type,
		Content:     u.Content,
		CreatedAt:   createdAt,
		Author:      u.Author,
		Confidence:  u.Confidence,
		Assumptions: u.Assumptions,
		Source:      u.Source,
		References:  u.References,
		Visibility:  u.Visibility,
		Audience:    u.Audience,
		Proof:       u.Proof,
	}
	base, err := json.Marshal(alias)
	if err != nil {
		return nil, err
	}
	if len(u.Extensions) == 0 {
		return base, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range u.Extensions {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		merged[k] = b
	}
	return json.Marshal(merged)
}
