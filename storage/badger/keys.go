package badger

import "strings"

// cacheKeyPrefix namespaces cache entries so the database can hold other data.
const cacheKeyPrefix = "sopc:"

// makeCacheKey generates the badger key for a cache key.
func makeCacheKey(key string) []byte {
	buf := make([]byte, len(cacheKeyPrefix)+len(key))
	offset := copy(buf, cacheKeyPrefix)
	copy(buf[offset:], key)
	return buf
}

// cacheKeyFromBytes strips the namespace prefix from a badger key.
func cacheKeyFromBytes(raw []byte) string {
	return strings.TrimPrefix(string(raw), cacheKeyPrefix)
}
