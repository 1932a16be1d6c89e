package util

import (
	"hash/fnv"
	"math/rand"
	"time"
)

// Stream returns a deterministic generator for the given seed and keys.
// The same seed and keys always produce the same sequence, so a session's
// offers can be reproduced from its id and the configured seed.
func Stream(seed int64, keys ...string) *rand.Rand {
	for _, k := range keys {
		if k == "" {
			continue
		}
		seed += int64(hashString(k))
	}
	return rand.New(rand.NewSource(seed))
}

// SeedOrNow returns seed, or the current time when seed is zero.
func SeedOrNow(seed int64) int64 {
	if seed != 0 {
		return seed
	}
	return time.Now().UnixNano()
}

func hashString(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}
