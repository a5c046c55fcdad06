package errors

import "context"

// retryableCategories are failure classes that are expected to clear on
// their own: downstream unavailability, timeouts and transient I/O. An
// open circuit breaker counts: the dependency behind it may recover by
// the time the task is rescheduled.
var retryableCategories = map[ErrorCategory]bool{
	CategoryNetwork:        true,
	CategoryDatabase:       true,
	CategoryObjectStorage:  true,
	CategoryTimeout:        true,
	CategoryCircuitBreaker: true,
}

// fatalCategories never benefit from another attempt: bad input, bad
// configuration or contract violations.
var fatalCategories = map[ErrorCategory]bool{
	CategoryValidation:    true,
	CategoryConfiguration: true,
	CategoryAudioDecode:   true,
	CategoryNotFound:      true,
	CategoryCancellation:  true,
}

// IsRetryable classifies an error as transient (worth retrying) or fatal.
// Classification is category driven; errors without a category are treated
// as fatal so programming errors are never masked by retry loops.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if Is(err, context.Canceled) {
		return false
	}
	if Is(err, context.DeadlineExceeded) {
		return true
	}

	var ee *EnhancedError
	if As(err, &ee) {
		if fatalCategories[ee.Category] {
			return false
		}
		return retryableCategories[ee.Category]
	}
	return false
}
