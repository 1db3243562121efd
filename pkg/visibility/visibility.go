// Package visibility implements the single may_read predicate that every
// read and list path in the node enforces (spec.md §4.5). It is kept as its
// own small package, in the teacher's style of factoring a single-purpose
// authorization check (pkg/workspace provider_interfaces.go) out of the
// handlers that use it, rather than scattering the rule across handlers.
package visibility

import "github.com/JDRay42/semanticweft/pkg/unit"

// MayRead reports whether viewerDID (empty for an unauthenticated caller)
// may read u, per the predicate in §4.5:
//
//   - public units are always readable.
//   - network units are never readable through a global read or list path;
//     they reach a follower only via that follower's inbox, which does not
//     call MayRead at all (delivery already decided the audience).
//   - limited units are readable only by a DID present in the audience, or
//     the unit's own author.
func MayRead(u *unit.Unit, viewerDID string) bool {
	switch u.Visibility.Effective() {
	case unit.VisibilityPublic:
		return true
	case unit.VisibilityNetwork:
		return false
	case unit.VisibilityLimited:
		if viewerDID == "" {
			return false
		}
		if viewerDID == u.Author {
			return true
		}
		for _, did := range u.Audience {
			if did == viewerDID {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// FilterListable narrows units to those eligible for a global list or sync
// response: public only, regardless of viewer, since §4.4 states network and
// limited units are never permitted on those paths and flow only via inbox.
func FilterListable(units []unit.Unit) []unit.Unit {
	out := make([]unit.Unit, 0, len(units))
	for i := range units {
		if units[i].Visibility.Effective() == unit.VisibilityPublic {
			out = append(out, units[i])
		}
	}
	return out
}

// FilterReadable narrows units to those MayRead allows for viewerDID. Used
// by subgraph, which is not restricted to public-only the way list/sync
// are, but still must not leak limited units to non-audience viewers.
func FilterReadable(units []unit.Unit, viewerDID string) []unit.Unit {
	out := make([]unit.Unit, 0, len(units))
	for i := range units {
		if MayRead(&units[i], viewerDID) {
			out = append(out, units[i])
		}
	}
	return out
}
