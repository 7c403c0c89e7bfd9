// Package timeout defines centralized timing constants for the chat client.
package timeout

import "time"

const (
	// RequestTimeout is the default timeout for a single backend call.
	RequestTimeout = 30 * time.Second

	// AutocompleteTTL is how long autocomplete results stay cached.
	AutocompleteTTL = 5 * time.Minute

	// MinAutocompleteRunes is the shortest query that triggers a lookup.
	MinAutocompleteRunes = 2
)
