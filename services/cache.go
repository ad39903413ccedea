package services

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/leafwise/plantid-community/utils"
)

// HashImage returns the hex SHA-256 of the raw image bytes. Identical bytes
// always map to the same cache entry regardless of uploader.
func HashImage(image []byte) string {
	sum := sha256.Sum256(image)
	return hex.EncodeToString(sum[:])
}

// ResultCacheKey builds the cache key for a merged identification result.
// The version segment isolates provider schema upgrades; the flag segment
// keeps health-assessment results apart from basic ones.
func ResultCacheKey(version, imageHash string, includeHealth bool) string {
	flag := "basic"
	if includeHealth {
		flag = "health"
	}
	return fmt.Sprintf("plant_id:%s:%s:%s", version, imageHash, flag)
}

// CachedResult returns a previously merged result for the key, if any.
func CachedResult(key string) (*MergedResult, bool) {
	b, ok := utils.CacheGetBytes(key)
	if !ok {
		return nil, false
	}
	var res MergedResult
	if err := json.Unmarshal(b, &res); err != nil {
		return nil, false
	}
	return &res, true
}

// StoreResult caches a merged result under the key for ttl.
func StoreResult(key string, res *MergedResult, ttl time.Duration) {
	utils.CacheSetJSON(key, res, ttl)
}
