package workitem

import (
	"fmt"
	"strings"
	"time"

	"github.com/drover-sh/drover/internal/errors"
)

// TimeLayout is the timestamp segment of an item identity.
const TimeLayout = "20060102T150405"

// childSep joins a child's channel to its parent identity. Channel names
// must not contain it.
const childSep = "--"

// NewID builds an item identity from its channel, creation time, and a
// slug derived from the subject line. Identities are never reused; the
// timestamp segment makes collisions practical only within one second on
// one channel, and exclusive create rejects those.
func NewID(channel string, t time.Time, slug string) string {
	return fmt.Sprintf("%s-%s-%s", channel, t.UTC().Format(TimeLayout), Slugify(slug))
}

// ValidateChannel rejects channel names that would corrupt the identity
// grammar: "-" separates the identity segments and "--" marks a child's
// parent reference, so neither may appear in a channel name. Applied
// once at the ingest boundary; identity parsing trusts the result.
func ValidateChannel(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty channel name", errors.ErrBadItem)
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
		default:
			return fmt.Errorf("%w: channel %q must match [a-z0-9_]+", errors.ErrBadItem, name)
		}
	}
	return nil
}

// ParseID splits an identity into channel, timestamp, and slug.
func ParseID(id string) (channel string, ts time.Time, slug string, err error) {
	// Children carry a parent reference; their channel is everything
	// before the separator and the parent supplies the timestamp.
	if c, parent, ok := strings.Cut(id, childSep); ok {
		_, ts, slug, err = ParseID(parent)
		if err != nil {
			return "", time.Time{}, "", err
		}
		return c, ts, slug, nil
	}

	parts := strings.SplitN(id, "-", 3)
	if len(parts) != 3 {
		return "", time.Time{}, "", fmt.Errorf("%w: malformed identity %q", errors.ErrBadItem, id)
	}
	ts, terr := time.Parse(TimeLayout, parts[1])
	if terr != nil {
		return "", time.Time{}, "", fmt.Errorf("%w: bad timestamp in %q", errors.ErrBadItem, id)
	}
	return parts[0], ts, parts[2], nil
}

// Channel returns the channel segment of an identity, or "" if the
// identity is malformed.
func Channel(id string) string {
	c, _, _, err := ParseID(id)
	if err != nil {
		return ""
	}
	return c
}

// ChildID names a synthesized child for one target channel of a parent.
// The parent identity is embedded verbatim so terminal child filenames
// alone are enough to rebuild coordinator tracking.
func ChildID(channel, parentID string) string {
	return channel + childSep + parentID
}

// ParentRef extracts the embedded parent identity from a child identity.
// Returns "", false for ordinary (non-child) identities.
func ParentRef(id string) (string, bool) {
	_, parent, ok := strings.Cut(id, childSep)
	return parent, ok
}

// Slugify lowercases s and collapses every non-alphanumeric run into a
// single hyphen, trimming hyphens at both ends.
func Slugify(s string) string {
	var b strings.Builder
	lastHyphen := true // suppress leading hyphen
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
