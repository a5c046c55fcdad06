package retry

import "time"

// Pre-built policies per dependency class. These are configuration data,
// not separate code paths: interactive catalog lookups get tight bounds,
// best-effort storage uploads get looser ones.

// CatalogPolicy returns the retry policy for relational catalog access.
func CatalogPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     2 * time.Second,
		Jitter:       true,
	}
}

// StoragePolicy returns the retry policy for object storage operations.
func StoragePolicy() Policy {
	return Policy{
		MaxAttempts:  5,
		InitialDelay: 500 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     30 * time.Second,
		Jitter:       true,
	}
}

// HTTPPolicy returns the retry policy for outbound HTTP calls such as the
// dispatch service API.
func HTTPPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     10 * time.Second,
		Jitter:       true,
	}
}
