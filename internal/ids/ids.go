// Package ids owns every identity KAIROS mints: deterministic UUIDv5 chain
// ids, random UUIDv4 step ids, point ids derived from URIs, and the
// kairos://mem/<uuid> grammar.
package ids

import (
	"strings"

	"github.com/google/uuid"

	"github.com/debian777/kairos-mcp/internal/faults"
)

// URIPrefix is the only scheme+path shape a memory URI may take.
const URIPrefix = "kairos://mem/"

// Namespace is the UUIDv5 namespace for all deterministic KAIROS ids.
// Derived once from the URL namespace so it is stable across builds.
var Namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("kairos://chain"))

// ChainID is a pure function of the chain label: two documents whose H1
// normalizes to the same label collide on purpose.
func ChainID(label string) string {
	return uuid.NewSHA1(Namespace, []byte(NormalizeLabel(label))).String()
}

// NormalizeLabel trims and collapses internal whitespace before hashing.
func NormalizeLabel(label string) string {
	return strings.Join(strings.Fields(label), " ")
}

// NewStepID mints a fresh random step identity.
func NewStepID() string { return uuid.NewString() }

// PointID derives a deterministic point id from an arbitrary URI string,
// used for legacy/resource ingestion paths.
func PointID(uri string) string {
	return uuid.NewSHA1(Namespace, []byte(uri)).String()
}

// URI renders the canonical address of a memory.
func URI(memoryUUID string) string { return URIPrefix + memoryUUID }

// ParseURI validates the grammar and returns the embedded memory uuid.
// Any other scheme or shape is rejected.
func ParseURI(uri string) (string, error) {
	if !strings.HasPrefix(uri, URIPrefix) {
		return "", faults.New(faults.CodeInvalidURI, "invalid uri %q: expected %s<uuid>", uri, URIPrefix)
	}
	raw := strings.TrimPrefix(uri, URIPrefix)
	id, err := uuid.Parse(raw)
	if err != nil || raw != id.String() {
		return "", faults.New(faults.CodeInvalidURI, "invalid uri %q: malformed uuid", uri)
	}
	return id.String(), nil
}
