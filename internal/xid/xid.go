// Package xid issues prefixed identifiers such as "sale-18f3a2c4d1e-9k2m...".
// The prefix keeps ids greppable in logs; the millisecond timestamp keeps
// them roughly sortable by creation time.
package xid

import (
	"crypto/rand"
	"encoding/base32"
	"strconv"
	"strings"
	"time"
)

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// New returns a unique id of the form prefix-millishex-random.
func New(prefix string) string {
	stamp := strconv.FormatInt(time.Now().UnixMilli(), 16)

	buf := make([]byte, 10)
	if _, err := rand.Read(buf); err != nil {
		// Entropy exhaustion is effectively unreachable; fall back to a
		// nanosecond stamp rather than panic in an id helper.
		return prefix + "-" + stamp + "-" + strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return prefix + "-" + stamp + "-" + strings.ToLower(encoding.EncodeToString(buf))
}
