package domain

import (
	"fmt"
	"strings"
)

// LocationPrefix is the first path segment of every lead location token.
const LocationPrefix = "lead"

// Location is the addressable position "lead/<identity>[/<node>]".
type Location struct {
	Identity string
	NodeID   string
}

// ParseLocation parses a location token. A leading "#" is accepted. Node ids
// may themselves contain "/": everything after the identity is the node id.
func ParseLocation(token string) (Location, error) {
	token = strings.TrimPrefix(strings.TrimSpace(token), "#")
	parts := strings.Split(token, "/")
	if len(parts) < 2 || parts[0] != LocationPrefix || parts[1] == "" {
		return Location{}, fmt.Errorf("%w: %q", ErrInvalidLocation, token)
	}
	loc := Location{Identity: parts[1]}
	if len(parts) > 2 {
		loc.NodeID = strings.Join(parts[2:], "/")
	}
	return loc, nil
}

// String renders the token.
func (l Location) String() string {
	if l.NodeID == "" {
		return LocationPrefix + "/" + l.Identity
	}
	return LocationPrefix + "/" + l.Identity + "/" + l.NodeID
}

// LeadKey is the storage key of a lead document.
func LeadKey(collection, identity string) string {
	return joinKey(collection, "leads", identity)
}

// IndexKey is the storage key of the subject index of a collection.
func IndexKey(collection string) string {
	return joinKey(collection, "index")
}

func joinKey(parts ...string) string {
	var out []string
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "/")
}
