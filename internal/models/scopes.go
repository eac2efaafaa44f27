package models

import "strings"

// The scope vocabulary for parish data access. "delete" implies "write",
// which implies "read". "profile" stands alone and only exposes the userinfo
// endpoint.
const (
	ScopeRead    = "read"
	ScopeWrite   = "write"
	ScopeDelete  = "delete"
	ScopeProfile = "profile"
)

// ValidScopes lists every recognized scope in canonical order. Stored
// consents and client registrations use this ordering.
var ValidScopes = []string{ScopeRead, ScopeWrite, ScopeDelete, ScopeProfile}

// scopeRank orders the hierarchical data scopes; higher ranks cover lower
// ones. Profile is deliberately absent: it covers only itself.
var scopeRank = map[string]int{
	ScopeRead:   1,
	ScopeWrite:  2,
	ScopeDelete: 3,
}

// IsValidScope reports whether name is one of the recognized scopes.
func IsValidScope(name string) bool {
	for _, s := range ValidScopes {
		if s == name {
			return true
		}
	}
	return false
}

// ParseScopes splits a space-delimited scope parameter and returns the
// recognized scopes in request order, de-duplicated. Unknown scope names are
// dropped silently rather than rejected: a client asking for "read calendar"
// simply gets "read" considered. An empty or all-unknown parameter yields an
// empty slice, never nil error.
func ParseScopes(scope string) []string {
	fields := strings.Fields(scope)
	result := make([]string, 0, len(fields))
	seen := make(map[string]bool, len(fields))
	for _, name := range fields {
		if !IsValidScope(name) || seen[name] {
			continue
		}
		seen[name] = true
		result = append(result, name)
	}
	return result
}

// IntersectScopes returns the scopes of requested that also appear in
// allowed, preserving the order of requested and de-duplicating. The
// comparison is exact membership; hierarchy does not apply here, since a
// client allowed "write" has not been registered for "delete".
func IntersectScopes(requested, allowed []string) []string {
	allowedSet := make(map[string]bool, len(allowed))
	for _, s := range allowed {
		allowedSet[s] = true
	}
	result := make([]string, 0, len(requested))
	seen := make(map[string]bool, len(requested))
	for _, s := range requested {
		if !allowedSet[s] || seen[s] {
			continue
		}
		seen[s] = true
		result = append(result, s)
	}
	return result
}

// ScopeCovers reports whether the held scope satisfies the wanted scope under
// the hierarchy: delete covers write covers read, and every scope covers
// itself. Profile covers only profile.
func ScopeCovers(held, wanted string) bool {
	if held == wanted {
		return true
	}
	heldRank, ok := scopeRank[held]
	if !ok {
		return false
	}
	wantedRank, ok := scopeRank[wanted]
	if !ok {
		return false
	}
	return heldRank >= wantedRank
}

// ScopesCover reports whether every wanted scope is covered by at least one
// held scope. This is the resource-access test: a token granted "write"
// covers a read-level operation, but never the other way around. Consent
// auto-approval does not use it; see Consent.Covers.
func ScopesCover(held, wanted []string) bool {
	for _, w := range wanted {
		covered := false
		for _, h := range held {
			if ScopeCovers(h, w) {
				covered = true
				break
			}
		}
		if !covered {
			return false
		}
	}
	return true
}

// IsScopeSubset reports whether every scope in sub appears verbatim in super.
// Used for refresh-token scope narrowing, where hierarchy does not apply:
// the client may keep or shrink what was granted, nothing more.
func IsScopeSubset(sub, super []string) bool {
	superSet := make(map[string]bool, len(super))
	for _, s := range super {
		superSet[s] = true
	}
	for _, s := range sub {
		if !superSet[s] {
			return false
		}
	}
	return true
}

// UnionScopes merges two scope lists into canonical order, de-duplicated.
// Consent records store their granted scopes this way so that repeated grants
// are stable and comparisons are cheap.
func UnionScopes(a, b []string) []string {
	present := make(map[string]bool, len(a)+len(b))
	for _, s := range a {
		present[s] = true
	}
	for _, s := range b {
		present[s] = true
	}
	result := make([]string, 0, len(present))
	for _, s := range ValidScopes {
		if present[s] {
			result = append(result, s)
		}
	}
	return result
}

// FormatScopes joins scopes into the space-delimited wire format.
func FormatScopes(scopes []string) string {
	return strings.Join(scopes, " ")
}
