package reliability

import "time"

// Severity buckets recognition errors by how the caller should react.
type Severity int

const (
	// SeverityBenign errors carry no state change and no retry accounting.
	SeverityBenign Severity = iota
	// SeverityRetryable errors count toward the restart budget.
	SeverityRetryable
	// SeverityFatal errors end recognition immediately.
	SeverityFatal
)

// ClassifyRecognitionError maps a platform recognizer error code to a severity.
// Unknown codes are treated as retryable rather than fatal so a new platform
// code cannot permanently kill transcription.
func ClassifyRecognitionError(code string) Severity {
	switch code {
	case "permission-denied", "no-audio-device":
		return SeverityFatal
	case "no-speech", "aborted":
		return SeverityBenign
	case "network":
		return SeverityRetryable
	default:
		return SeverityRetryable
	}
}

// RestartBackoff computes the delay before restarting recognition after the
// given number of consecutive counted errors: min(1s * (errors+1), 5s).
// Monotonically non-decreasing and capped.
func RestartBackoff(errorCount int) time.Duration {
	if errorCount < 0 {
		errorCount = 0
	}
	d := time.Duration(errorCount+1) * time.Second
	if d > 5*time.Second {
		return 5 * time.Second
	}
	return d
}
