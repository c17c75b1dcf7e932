package storage

import "time"

// User is a bot user as first observed. Attributes are written once on first
// contact and never refreshed afterwards.
type User struct {
	UserId    int64     `bson:"user_id"`
	Username  string    `bson:"username"`
	FirstName string    `bson:"first_name"`
	LastName  string    `bson:"last_name"`
	CreatedAt time.Time `bson:"created_at"`
}

// UsageCount is one per-(user, service) invocation counter.
type UsageCount struct {
	UserId      int64     `bson:"user_id"`
	ServiceName string    `bson:"service_name"`
	Count       int       `bson:"count"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

// Session holds a user's current capability selection tag, "" when unset.
type Session struct {
	UserId    int64     `bson:"user_id"`
	Tag       string    `bson:"tag"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// Storage persists users, usage counters and session selections. All methods
// are safe for concurrent use; IncrementUsage must be atomic per
// (user, service) key so interleaved requests never lose counts.
type Storage interface {
	// EnsureUser records the user on first contact; no-op if already present.
	EnsureUser(user *User) error
	// IncrementUsage adds 1 to the (user, service) counter, creating it at 1.
	IncrementUsage(userId int64, serviceName string) error
	// UsageCounts returns a snapshot of the user's counters keyed by service
	// name. Services never used are absent, not zero.
	UsageCounts(userId int64) (map[string]int, error)
	// Selection returns the user's current capability tag, "" when unset.
	Selection(userId int64) (string, error)
	// SetSelection stores the user's capability tag, last write wins.
	SetSelection(userId int64, tag string) error
	Close() error
}
