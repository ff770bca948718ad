package auth

import "time"

// SetClock fixes the token generator's notion of now.
func SetClock(j *JWTTokenGenerator, now func() time.Time) {
	j.now = now
}
