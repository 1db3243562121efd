// Package unit implements the Semantic Unit data model: the immutable,
// typed, cryptographically-authored claim that is the atom of the
// SemanticWeft knowledge graph.
package unit

import (
	"encoding/json"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// Type enumerates the kinds of claim a Unit may express.
type Type string

const (
	TypeAssertion  Type = "assertion"
	TypeQuestion   Type = "question"
	TypeInference  Type = "inference"
	TypeChallenge  Type = "challenge"
	TypeConstraint Type = "constraint"
)

func (t Type) Valid() bool {
	switch t {
	case TypeAssertion, TypeQuestion, TypeInference, TypeChallenge, TypeConstraint:
		return true
	}
	return false
}

// Rel enumerates the relationship a Reference carries to its target.
type Rel string

const (
	RelSupports    Rel = "supports"
	RelRebuts      Rel = "rebuts"
	RelDerivesFrom Rel = "derives-from"
	RelQuestions   Rel = "questions"
	RelRefines     Rel = "refines"
	RelNotifies    Rel = "notifies"
)

func (r Rel) Valid() bool {
	switch r {
	case RelSupports, RelRebuts, RelDerivesFrom, RelQuestions, RelRefines, RelNotifies:
		return true
	}
	return false
}

// Visibility governs who may read a Unit. The zero value is treated as
// Public per spec (absent visibility ≡ public).
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityNetwork Visibility = "network"
	VisibilityLimited Visibility = "limited"
)

func (v Visibility) Valid() bool {
	switch v {
	case "", VisibilityPublic, VisibilityNetwork, VisibilityLimited:
		return true
	}
	return false
}

// Effective returns the effective visibility, defaulting absent to public.
func (v Visibility) Effective() Visibility {
	if v == "" {
		return VisibilityPublic
	}
	return v
}

// Reference is a directed edge to another unit. The target id need not be
// known locally (I3 forward references).
type Reference struct {
	ID  uuid.UUID `json:"id"`
	Rel Rel       `json:"rel"`
}

// Source names where a claim came from: either a bare label string, or an
// object with a label and a URI.
type Source struct {
	Label string `json:"label,omitempty"`
	URI   string `json:"uri,omitempty"`
}

// Proof is the detachable signature envelope, §4.1. It is stripped before
// canonicalization (I5).
type Proof struct {
	Method  string `json:"method"`
	Created string `json:"created"`
	Value   string `json:"value"`
}

// Unit is the immutable Semantic Unit record, §3.
type Unit struct {
	ID          uuid.UUID      `json:"id"`
	Type        Type           `json:"type"`
	Content     string         `json:"content"`
	CreatedAt   time.Time      `json:"created_at"`
	Author      string         `json:"author"`
	Confidence  *float64       `json:"confidence,omitempty"`
	Assumptions []string       `json:"assumptions,omitempty"`
	Source      *RawSource     `json:"source,omitempty"`
	References  []Reference    `json:"references,omitempty"`
	Visibility  Visibility     `json:"visibility,omitempty"`
	Audience    []string       `json:"audience,omitempty"`
	Proof       *Proof         `json:"proof,omitempty"`
	Extensions  map[string]any `json:"-"`

	// createdAtRaw preserves the literal created_at string as received on
	// the wire. More than one ISO 8601 UTC rendering of the same instant is
	// valid (trailing fractional zeros, "+00:00" vs "Z"), so re-deriving
	// this field from CreatedAt via formatTimestamp would change the JCS
	// signing payload's bytes out from under a signature computed over the
	// original string (§8). Empty for units built in-process rather than
	// parsed, in which case MarshalJSON falls back to formatTimestamp.
	createdAtRaw string
}

// RawSource holds the source field, which may arrive as either a bare JSON
// string or an object {label, uri}. It round-trips in whichever shape it was
// given.
type RawSource struct {
	IsObject bool
	Label    string
	URI      string
}

func (s *RawSource) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		s.IsObject = false
		s.Label = str
		return nil
	}
	var obj Source
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	s.IsObject = true
	s.Label = obj.Label
	s.URI = obj.URI
	return nil
}

func (s RawSource) MarshalJSON() ([]byte, error) {
	if !s.IsObject {
		return json.Marshal(s.Label)
	}
	return json.Marshal(Source{Label: s.Label, URI: s.URI})
}

// extensionNamePattern matches the legal extension field name shape,
// ^x-[a-z0-9]+(\.[a-z0-9]+)+$.
var extensionNamePattern = regexp.MustCompile(`^x-[a-z0-9]+(\.[a-z0-9]+)+$`)

// ValidExtensionName reports whether name matches the extension field
// naming convention.
func ValidExtensionName(name string) bool {
	return extensionNamePattern.MatchString(name)
}
