package auth

import "strings"

// ParseScopes splits a space-separated scope claim into individual scope
// names. The empty string yields an empty set.
func ParseScopes(scope string) []string {
	return strings.Fields(scope)
}

// MissingScopes returns the required scopes that are not present in the
// granted set, preserving the order in which they were required. Scopes are
// matched by exact string membership; there is no hierarchy between scopes,
// so write:messages does not imply read:messages.
func MissingScopes(required, granted []string) []string {
	grantedSet := make(map[string]struct{}, len(granted))
	for _, s := range granted {
		grantedSet[s] = struct{}{}
	}

	var missing []string
	for _, s := range required {
		if _, ok := grantedSet[s]; !ok {
			missing = append(missing, s)
		}
	}
	return missing
}

// HasScopes reports whether every required scope is in the granted set.
func HasScopes(required, granted []string) bool {
	return len(MissingScopes(required, granted)) == 0
}
