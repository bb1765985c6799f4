package bunx

import "github.com/google/uuid"

// NewUUIDv7 generates a time-ordered UUIDv7 string for database primary keys.
//
// It panics only when the system entropy source fails, in which case no
// record could be created safely anyway.
func NewUUIDv7() string {
	return uuid.Must(uuid.NewV7()).String()
}
