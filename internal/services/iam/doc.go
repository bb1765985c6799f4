// Package iam provides the principal and role operations behind the HTTP
// controllers and the CLI.
//
// The service centralizes:
//
//   - Principal management: create (password hashed before persist), read,
//     update, delete, and the public projection {id, username, roles}
//   - Role management, including findOrCreate which is safe under
//     concurrent calls for the same name
//   - Role assignment (idempotent attach)
//   - Bearer token issue/revoke and expiry sweeps
//
// Request Flow:
//
//	Request → middleware.Chain (strategies, guards) → Handler → iam.Service → repository
//
// Authentication itself lives in the middleware package. This package never
// reads the request; it only sees IDs and values the handlers pass in.
//
// Every storage call made by the service is bounded by the configured
// storage timeout.
package iam
