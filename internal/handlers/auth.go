package handlers

import "strings"

const bearerPrefix = "bearer "

// resolveAPIKey returns the credential to forward upstream: the caller's
// Authorization header without its Bearer prefix, else fallback. An empty
// result means no credential is sent.
func resolveAPIKey(header, fallback string) string {
	key := strings.TrimSpace(header)
	if len(key) >= len(bearerPrefix) && strings.EqualFold(key[:len(bearerPrefix)], bearerPrefix) {
		key = strings.TrimSpace(key[len(bearerPrefix):])
	} else if strings.EqualFold(key, strings.TrimSpace(bearerPrefix)) {
		key = ""
	}
	if key == "" {
		key = strings.TrimSpace(fallback)
	}
	return key
}
