// Package auth defines the access-token contract the batch evaluator and
// dispatcher depend on (§6) and a Cognito-backed implementation. Token
// issuance itself — the login/refresh flow — is an external collaborator
// (§1); this package only models the already-issued token's shape.
package auth

import "github.com/jarrod-lowe/jmap-service-core/internal/jmaptypes"

// AccessToken is shared-read by reference across a request (§5): it is
// immutable after issuance, so no locking is needed to read it
// concurrently with the evaluator's other suspension points.
type AccessToken interface {
	// PrimaryID is the account this token authenticates as.
	PrimaryID() jmaptypes.Id
	// State is a token-derived state string used to seed Response.State.
	State() string
	// IsSuperUser reports whether Principal lookups are allowed
	// regardless of the per-config flag (§4.4).
	IsSuperUser() bool
	// AssertHasAccess checks collection-scoped access to account (Email,
	// Mailbox). Returns Forbidden on failure.
	AssertHasAccess(account jmaptypes.Id, collection string) error
	// AssertIsMember checks account-membership-scoped access (Identity,
	// EmailSubmission, SieveScript, VacationResponse).
	AssertIsMember(account jmaptypes.Id) error
}
