package corpus

import (
	"fmt"
	"net/url"
	"strings"
)

// CitationScheme is the URL scheme for durable document references.
const CitationScheme = "oc"

// CitationURL builds the durable reference for a document,
// oc://doc/<stable_id>. Content cited this way stays resolvable after
// the file moves because the stable id never changes.
func CitationURL(stableID string) string {
	return fmt.Sprintf("%s://doc/%s", CitationScheme, stableID)
}

// CitationURLWithFallback builds a citation that carries a url-encoded
// rel path fallback. Used only when a stable id cannot yet be resolved,
// e.g. a newly created document that has not been re-indexed.
func CitationURLWithFallback(stableID, relPath string) string {
	if relPath == "" {
		return CitationURL(stableID)
	}
	return fmt.Sprintf("%s?path=%s", CitationURL(stableID), url.QueryEscape(relPath))
}

// ParseCitation extracts the stable id and optional path fallback from
// an oc://doc/... URL.
func ParseCitation(citation string) (stableID, fallbackPath string, err error) {
	u, err := url.Parse(citation)
	if err != nil {
		return "", "", fmt.Errorf("invalid citation %q: %w", citation, err)
	}
	if u.Scheme != CitationScheme || u.Host != "doc" {
		return "", "", fmt.Errorf("invalid citation %q: want oc://doc/<stable_id>", citation)
	}
	stableID = strings.TrimPrefix(u.Path, "/")
	if stableID == "" {
		return "", "", fmt.Errorf("invalid citation %q: missing stable id", citation)
	}
	return stableID, u.Query().Get("path"), nil
}
