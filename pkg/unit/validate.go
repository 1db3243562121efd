package unit

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// ValidationError wraps a structural validation failure with the field that
// triggered it, matching the {error, code} envelope the HTTP surface emits
// as a 422.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

func invalid(field, msg string) *ValidationError {
	return &ValidationError{Field: field, Msg: msg}
}

// Validate checks the syntactic/structural invariants of §4.1. It does not
// verify the proof signature — see the identity package for that.
func Validate(u *Unit) error {
	if u.ID.String() == "00000000-0000-0000-0000-000000000000" || u.ID.Version() != 7 {
		return invalid("id", "must be a valid UUIDv7")
	}
	if !u.Type.Valid() {
		return invalid("type", "must be one of assertion, question, inference, challenge, constraint")
	}
	if err := validation.Validate(u.Content, validation.Required); err != nil {
		return invalid("content", "must be non-empty")
	}
	if u.CreatedAt.IsZero() {
		return invalid("created_at", "must be a parseable ISO 8601 timestamp")
	}
	if err := validation.Validate(u.Author, validation.Required); err != nil {
		return invalid("author", "must be non-empty")
	}
	if u.Confidence != nil && (*u.Confidence < 0 || *u.Confidence > 1) {
		return invalid("confidence", "must be within [0,1]")
	}
	for i, a := range u.Assumptions {
		if a == "" {
			return invalid(fmt.Sprintf("assumptions[%d]", i), "must be non-empty")
		}
	}
	if u.Source != nil && u.Source.IsObject && u.Source.Label == "" {
		return invalid("source", "object form requires a label")
	}
	for i, ref := range u.References {
		if ref.ID.String() == "00000000-0000-0000-0000-000000000000" || ref.ID.Version() != 7 {
			return invalid(fmt.Sprintf("references[%d].id", i), "must be a valid UUIDv7")
		}
		if !ref.Rel.Valid() {
			return invalid(fmt.Sprintf("references[%d].rel", i), "must be a recognized relationship")
		}
	}
	if err := validateVisibilityAudience(u); err != nil {
		return err
	}
	if u.Proof != nil {
		if u.Proof.Method == "" || u.Proof.Value == "" {
			return invalid("proof", "method and value are required when proof is present")
		}
	}
	for name := range u.Extensions {
		if !ValidExtensionName(name) {
			return invalid(name, "extension field names must match ^x-[a-z0-9]+(\\.[a-z0-9]+)+$")
		}
	}
	return nil
}

// validateVisibilityAudience enforces I2: visibility=limited iff audience is
// present and non-empty.
func validateVisibilityAudience(u *Unit) error {
	if !u.Visibility.Valid() {
		return invalid("visibility", "must be one of public, network, limited")
	}
	eff := u.Visibility.Effective()
	switch eff {
	case VisibilityLimited:
		if len(u.Audience) == 0 {
			return invalid("audience", "required and non-empty when visibility=limited")
		}
	default:
		if len(u.Audience) != 0 {
			return invalid("audience", "must be absent unless visibility=limited")
		}
	}
	return nil
}
