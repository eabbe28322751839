// Package keys defines Redis key formats used by the caching layer.
package keys

import (
	"fmt"

	"github.com/baroni200/overpass-landmarks/internal/core/model"
)

// Landmarks returns the cache key for a canonical key under the given
// namespace: the landmark set for "landmarks", the request snapshot for
// "requests".
func Landmarks(namespace string, key model.CanonicalKey) string {
	return fmt.Sprintf("%s:%s", namespace, key.String())
}

// Request returns the cache key for a request's lookup by id.
func Request(namespace string, id string) string {
	return fmt.Sprintf("%s:id:%s", namespace, id)
}
