// Package auth provides authentication and authorisation for the onward
// auth service.
//
// It implements:
//   - Argon2id password hashing in PHC string format
//   - Short-lived HS256 access tokens carrying roles and permissions
//   - Refresh-token rotation with family-based reuse detection
//   - Role-based access control resolved through role and permission tables
//
// Refresh tokens are grouped into families. Login starts a family; each
// refresh consumes the presented token and issues its successor in the same
// family. Presenting a consumed or revoked token again revokes the whole
// family, forcing every holder to re-authenticate.
//
// Rotation is decided by a conditional update in storage ("update where not
// yet revoked"), so two concurrent refreshes of one token can never both
// succeed, whether they run in one process or several.
//
// Authorisation checks fail closed: any failure to resolve a user's
// permissions denies access.
package auth
