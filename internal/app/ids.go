package app

import (
	"strings"

	"github.com/google/uuid"
)

// canonicalID rewrites a UUID in any spelling uuid.Parse accepts (upper case, braces,
// urn prefix) to the lowercase hyphenated form the store returns. Anything else is
// passed through and the store answers it as not found.
func canonicalID(id string) string {
	trimmed := strings.TrimSpace(id)
	parsed, err := uuid.Parse(trimmed)
	if err != nil {
		return trimmed
	}
	return parsed.String()
}
