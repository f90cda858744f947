package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"
)

var seq atomic.Uint64

// New builds a prefixed, time-ordered unique identifier such as
// "sale-1693526400000000000-3-a1b2c3d4e5f6". The per-process sequence
// keeps IDs distinct even when the clock and entropy collide.
func New(prefix string) string {
	n := seq.Add(1)
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s-%d-%d", prefix, time.Now().UnixNano(), n)
	}
	return fmt.Sprintf("%s-%d-%d-%s", prefix, time.Now().UnixNano(), n, hex.EncodeToString(buf))
}
