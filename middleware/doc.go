// Package middleware exposes the HTTP guard for routes that need a reset
// token, such as setting a new password after a recovery.
//
// [RequireReset] reads the Authorization header, calls
// Engine.AuthenticateReset, and injects the recovered user into the request
// context where [ResetUserFromContext] finds it.
//
// # What this package must NOT do
//
//   - Parse or create tokens directly (delegates to Engine).
//   - Access Redis or the user store (Engine handles I/O).
package middleware
