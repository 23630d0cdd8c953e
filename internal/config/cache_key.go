package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// SessionPaperKey returns the cache key for a session's delivered question paper
func (r *CacheKeyStruct) SessionPaperKey(sessionID string) string {
	return fmt.Sprintf("session:%s:paper", sessionID)
}

// SubjectMonitorChannel returns the Redis PubSub channel name for a subject monitor
func (r *CacheKeyStruct) SubjectMonitorChannel(subjectID int) string {
	return fmt.Sprintf("subject:%d:monitor", subjectID)
}

var CacheKey = NewCacheKeyStruct()
