// ABOUTME: Stable identities for feeds and items used to deduplicate across refreshes
// ABOUTME: Items use guid, then link, then a UUIDv5 fingerprint of normalized title + publish time

package identity

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// FingerprintPrefix marks identities derived from content rather than
// supplied by the feed.
const FingerprintPrefix = "fp:"

// namespace scopes the name-based UUIDs so fingerprints never collide
// with identities from other UUIDv5 users.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/harper/skim/item"))

var folder = cases.Fold()

// Feed returns the identity of a feed: its subscription URL.
func Feed(url string) string {
	return strings.TrimSpace(url)
}

// Item returns the identity of an item within its feed. A non-empty guid
// wins, then the link; otherwise the identity is a fingerprint of the
// normalized title and the publish time. Two distinct entries sharing
// both title and publish time collapse into one.
func Item(guid, link, title string, published *time.Time) string {
	if g := strings.TrimSpace(guid); g != "" {
		return g
	}
	if l := strings.TrimSpace(link); l != "" {
		return l
	}
	return Fingerprint(title, published)
}

// Fingerprint derives a deterministic identity from title and publish time.
func Fingerprint(title string, published *time.Time) string {
	var b strings.Builder
	b.WriteString(NormalizeTitle(title))
	b.WriteByte(0x1f)
	if published != nil && !published.IsZero() {
		b.WriteString(published.UTC().Format(time.RFC3339))
	}
	return FingerprintPrefix + uuid.NewSHA1(namespace, []byte(b.String())).String()
}

// NormalizeTitle applies NFKC, Unicode case folding and whitespace collapsing
// so cosmetic differences between fetches map to the same fingerprint.
func NormalizeTitle(title string) string {
	s := norm.NFKC.String(title)
	s = folder.String(s)
	return strings.Join(strings.Fields(s), " ")
}

// IsFingerprint reports whether id was derived from content.
func IsFingerprint(id string) bool {
	return strings.HasPrefix(id, FingerprintPrefix)
}
