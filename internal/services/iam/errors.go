package iam

import "errors"

// ErrValidation marks caller input the service refuses: empty or oversized
// fields and names that collide with an existing record. Collisions also
// wrap repository.ErrConflict so callers can tell them apart.
var ErrValidation = errors.New("validation failed")
