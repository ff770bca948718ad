package session

import "time"

// SetClock swaps the clock used for per-key expiry.
func SetClock(s *MemoryStore, now func() time.Time) {
	s.now = now
}
