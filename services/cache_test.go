package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashImageDeterministic(t *testing.T) {
	a := HashImage([]byte("same bytes"))
	b := HashImage([]byte("same bytes"))
	c := HashImage([]byte("other bytes"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64) // hex sha256
}

func TestResultCacheKey(t *testing.T) {
	hash := HashImage([]byte("img"))

	basic := ResultCacheKey("v3", hash, false)
	health := ResultCacheKey("v3", hash, true)

	assert.Equal(t, "plant_id:v3:"+hash+":basic", basic)
	assert.Equal(t, "plant_id:v3:"+hash+":health", health)
	assert.NotEqual(t, basic, health)
}
