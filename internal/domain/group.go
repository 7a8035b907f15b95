package domain

import "strings"

// NormalizeGroup reduces a public group identifier to its bare username:
// surrounding whitespace, link prefixes and a leading @ are removed.
// "@gophers", "t.me/gophers" and "https://t.me/gophers" all become "gophers".
func NormalizeGroup(name string) string {
	name = strings.TrimSpace(name)
	for _, prefix := range []string{"https://", "http://", "t.me/", "telegram.me/"} {
		name = strings.TrimPrefix(name, prefix)
	}
	return strings.TrimPrefix(name, "@")
}
