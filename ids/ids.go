// Package ids derives deterministic identifiers for records of a business.
//
// Records are never deleted, so the n-th record of a kind is a stable key:
// the same business replayed from the same commands gets the same ids.
package ids

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator scopes ids to one business.
type Generator struct {
	ns uuid.UUID
}

func New(businessID string) Generator {
	return Generator{ns: uuid.NewSHA1(uuid.NameSpaceOID, []byte("harvest-engine/"+businessID))}
}

// Next returns the id of the n-th record (1-based) of the given kind.
func (g Generator) Next(kind string, n int) string {
	return kind + "-" + uuid.NewSHA1(g.ns, []byte(fmt.Sprintf("%s/%d", kind, n))).String()
}
