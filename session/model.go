package session

import "time"

// Record is the server-side state of one session.
type Record struct {
	UserID            string
	IssuedAt          time.Time
	LastActivityAt    time.Time
	AbsoluteExpiresAt time.Time
	Rotation          uint32
}

// Expired reports whether now has reached the absolute ceiling. A session is
// live on [IssuedAt, AbsoluteExpiresAt), the same interval a Redis key set
// with PX = remaining lifetime survives, so the touch script agrees.
func (r *Record) Expired(now time.Time) bool {
	return !now.Before(r.AbsoluteExpiresAt)
}

// Issued is returned exactly once per Issue or Rotate. Token is the only copy
// of the raw bearer secret.
type Issued struct {
	Token  string
	Record Record
}
