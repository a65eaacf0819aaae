package models

import (
	"strings"

	"github.com/google/uuid"
)

// NameID returns a name-based UUID over parts, so re-ingesting the same input
// yields the same identifiers.
func NameID(parts ...string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(strings.Join(parts, "|"))).String()
}
