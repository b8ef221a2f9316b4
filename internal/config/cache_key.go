package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// SessionDeadlineKey returns the cache key for a session's absolute
// deadline (unix seconds). Written when the clock starts, read by
// remaining-time lookups, deleted at finalize.
func (r *CacheKeyStruct) SessionDeadlineKey(sessionID string) string {
	return fmt.Sprintf("session:%s:deadline", sessionID)
}

// TestDurationKey returns the cache key for a test's duration in minutes.
func (r *CacheKeyStruct) TestDurationKey(testID string) string {
	return fmt.Sprintf("test:%s:duration", testID)
}

// GradingLockKey returns the per-submission execution guard key.
func (r *CacheKeyStruct) GradingLockKey(submissionID string) string {
	return fmt.Sprintf("submission:%s:grading_lock", submissionID)
}

var CacheKey = NewCacheKeyStruct()
