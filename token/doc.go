// Package token issues and verifies the reset-scoped access token handed to a
// user after a successful recovery validation. The token carries
// auth_type=reset and authorizes the password endpoints only.
package token
