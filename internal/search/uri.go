package search

import (
	"fmt"
	"strings"
)

// Scheme prefixes every symbol URI.
const Scheme = "symdoc://"

// URI returns the symdoc:// URI of a symbol.
func URI(snapshot, version, qualifiedName string) string {
	return fmt.Sprintf("%s%s/%s/%s", Scheme, snapshot, version, qualifiedName)
}

// ParseURI splits a symdoc://snapshot/version/name URI. The name may itself
// contain slashes ("operator/").
func ParseURI(uri string) (snapshot, version, name string, err error) {
	rest, ok := strings.CutPrefix(uri, Scheme)
	if !ok {
		return "", "", "", fmt.Errorf("invalid URI %q: expected %s prefix", uri, Scheme)
	}
	parts := strings.SplitN(rest, "/", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", fmt.Errorf("invalid URI %q: expected %ssnapshot/version/symbol", uri, Scheme)
	}
	return parts[0], parts[1], parts[2], nil
}
