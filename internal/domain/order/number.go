package order

import (
	"encoding/hex"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Numberer issues human-readable order numbers of the form
// ORD-YYYYMMDD-XXXXXXXXXX. The first six characters of the suffix are the
// millisecond of the day in base36, strictly increasing within a process;
// the last four are random hex. The store's unique constraint catches the
// remaining cross-process collisions.
type Numberer struct {
	mu   sync.Mutex
	day  string
	last int64
	now  func() time.Time
}

// NewNumberer creates a Numberer using the wall clock.
func NewNumberer() *Numberer {
	return NewNumbererWithClock(time.Now)
}

// NewNumbererWithClock creates a Numberer that dates numbers with now.
func NewNumbererWithClock(now func() time.Time) *Numberer {
	return &Numberer{now: now}
}

// Next returns a new order number.
func (n *Numberer) Next() string {
	now := n.now().UTC()
	day := now.Format("20060102")
	ms := now.Sub(now.Truncate(24 * time.Hour)).Milliseconds()

	n.mu.Lock()
	if day == n.day && ms <= n.last {
		ms = n.last + 1
	}
	n.day, n.last = day, ms
	n.mu.Unlock()

	seq := strings.ToUpper(strconv.FormatInt(ms, 36))
	if len(seq) < 6 {
		seq = strings.Repeat("0", 6-len(seq)) + seq
	}

	id := uuid.New()
	return "ORD-" + day + "-" + seq + strings.ToUpper(hex.EncodeToString(id[:2]))
}
