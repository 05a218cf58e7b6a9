package storage

import "time"

// nowRFC3339 is isolated in its own function so tests covering the sidecar
// metadata writer can focus on the fields that matter without depending on
// wall-clock time.
func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// backoff sleeps briefly before a MarkAsInvalidState retry, growing with
// the attempt number up to a small cap.
func backoff(attempt int) {
	delay := time.Duration(attempt+1) * 2 * time.Millisecond
	if delay > 50*time.Millisecond {
		delay = 50 * time.Millisecond
	}
	time.Sleep(delay)
}
