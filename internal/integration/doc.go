// Package integration runs the gateway's LDAP session runner against a
// real OpenLDAP container, exercising directory semantics (filter
// evaluation, schema enforcement, atomic operations) no fake listener
// can reproduce.
//
// Run with: go test -tags=integration ./internal/integration/...
package integration
