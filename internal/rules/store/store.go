// Package store provides the rule persistence backends. Implementations
// return pkg/sentinel errors for store facts; the rules service translates
// them into domain errors.
package store

import "tokengate/internal/rules"

// Both backends satisfy the service's persistence contract.
var (
	_ rules.Store = (*MemoryStore)(nil)
	_ rules.Store = (*PostgresStore)(nil)
)
