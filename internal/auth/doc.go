// Package auth issues and validates the bearer tokens of the REST API.
//
// Tokens are HS256 JWTs signed with api.auth.jwt_secret. A token carries
// one scope: "read" allows GET requests, "write" additionally allows PUT
// and POST. Tokens are minted offline with `dsssync issue-token`.
package auth
