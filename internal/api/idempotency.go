package api

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

const IdempotencyHeader = "Idempotency-Key"

// IdempotencyCache remembers successful appointment creations by client
// key so a retried POST returns the original appointment instead of
// booking twice. It is per process and bounded.
type IdempotencyCache struct {
	cache *lru.Cache[string, AppointmentResponse]
}

func NewIdempotencyCache(size int) (*IdempotencyCache, error) {
	if size <= 0 {
		size = 1024
	}
	cache, err := lru.New[string, AppointmentResponse](size)
	if err != nil {
		return nil, fmt.Errorf("create idempotency cache: %w", err)
	}
	return &IdempotencyCache{cache: cache}, nil
}

// cacheKey scopes the client key to the patient, so two patients reusing a
// key never see each other's booking.
func cacheKey(key, patientID string) string {
	return patientID + "/" + key
}

func (c *IdempotencyCache) Get(key, patientID string) (AppointmentResponse, bool) {
	if c == nil || key == "" {
		return AppointmentResponse{}, false
	}
	return c.cache.Get(cacheKey(key, patientID))
}

func (c *IdempotencyCache) Put(key, patientID string, resp AppointmentResponse) {
	if c == nil || key == "" {
		return
	}
	c.cache.Add(cacheKey(key, patientID), resp)
}
