package token

import (
	"context"
	"errors"
	"strings"
	"time"
)

var errTTL = errors.New("token: ttl must be greater than zero")

// RevocationStore is the TTL key-value contract the manager consumes for
// whitelist and blacklist state. All operations are single-key or independent
// multi-key writes with server-side atomicity; no client-side locking is
// needed. GetDel is the atomic check-and-delete that makes refresh rotation
// consume-once.
//
// Keys(pattern) is a glob scan over the shared keyspace. The whitelist layout
// keeps the subject as the trailing segment so per-subject revocation scans
// with a single pattern; this is still O(keyspace) on the server and a
// per-subject index is the follow-up if whitelist cardinality grows.
type RevocationStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	GetDel(ctx context.Context, key string) (string, bool, error)
	Del(ctx context.Context, keys ...string) error
	TTL(ctx context.Context, key string) (time.Duration, error)
	Keys(ctx context.Context, pattern string) ([]string, error)
}

const (
	whitelistPrefix = "whitelist:"
	blacklistPrefix = "blacklist:"
)

func whitelistKey(jti, subject string) string {
	return whitelistPrefix + jti + ":" + subject
}

func blacklistKey(jti string) string {
	return blacklistPrefix + jti
}

func whitelistSubjectPattern(subject string) string {
	return whitelistPrefix + "*:" + subject
}

// jtiFromWhitelistKey recovers the jti segment from a whitelist key.
func jtiFromWhitelistKey(key string) (string, bool) {
	rest, ok := strings.CutPrefix(key, whitelistPrefix)
	if !ok {
		return "", false
	}
	jti, _, ok := strings.Cut(rest, ":")
	if !ok || jti == "" {
		return "", false
	}
	return jti, true
}
