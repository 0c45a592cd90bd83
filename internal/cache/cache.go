// Package cache stores serialized query results per ticker and drops them on refresh.
package cache

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// DefaultTTL bounds how long an entry survives without a refresh
const DefaultTTL = time.Hour

// Cache is a byte store with per-ticker invalidation.
// Keys built with Key share the ticker prefix that InvalidatePrefix removes.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	InvalidatePrefix(ctx context.Context, prefix string) (int, error)
	Flush(ctx context.Context) error
}

// Key builds "<scope>:<hash of parts>"
func Key(scope string, parts ...string) string {
	h := xxhash.New()
	for i, p := range parts {
		if i > 0 {
			_, _ = h.WriteString("\x00")
		}
		_, _ = h.WriteString(p)
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], h.Sum64())
	return Prefix(scope) + hex.EncodeToString(buf[:])
}

// Prefix is the key prefix shared by every entry of scope
func Prefix(scope string) string {
	return strings.ToUpper(scope) + ":"
}

// Nop never stores anything
type Nop struct{}

func (Nop) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, nil
}

func (Nop) Set(context.Context, string, []byte) error {
	return nil
}

func (Nop) InvalidatePrefix(context.Context, string) (int, error) {
	return 0, nil
}

func (Nop) Flush(context.Context) error {
	return nil
}
