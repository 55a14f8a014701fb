package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// AttemptDeadlineKey returns the cache key for an attempt's server deadline.
func (r *CacheKeyStruct) AttemptDeadlineKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:deadline", attemptID)
}

// AttemptAnswersKey returns the cache key for an attempt's live answer hash.
func (r *CacheKeyStruct) AttemptAnswersKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:answers", attemptID)
}

// PackageBundleKey returns the cache key for a package's offline bundle payload.
func (r *CacheKeyStruct) PackageBundleKey(packageID string) string {
	return fmt.Sprintf("package:%s:bundle", packageID)
}

// UserActiveAttemptKey returns the cache key for a user's active attempt ID.
func (r *CacheKeyStruct) UserActiveAttemptKey(userID int) string {
	return fmt.Sprintf("user:%d:active_attempt", userID)
}

var CacheKey = NewCacheKeyStruct()
