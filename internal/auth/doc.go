// Package auth protects the HTTP API and hashes credentials.
//
// The API is open unless AUTH_TOKEN_HASH holds the SHA-256 hex digest of a
// bearer token:
//
//	sheetloader token                       # prints a token and its hash
//	AUTH_TOKEN_HASH=<hash> sheetloader serve
//	curl -H "Authorization: Bearer <token>" .../api/classes
//
// Passwords imported from spreadsheets are stored as bcrypt hashes with
// AUTH_BCRYPT_COST.
package auth
