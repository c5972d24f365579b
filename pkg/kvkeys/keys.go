// Package kvkeys defines the key schema for the result cache's Redis cold
// tier and an in-flight build marker.
package kvkeys

// ResultCache returns the Redis key a rendered artifact is stored under,
// keyed by its fingerprint hex digest.
func ResultCache(fingerprintHex string) string { return "result:" + fingerprintHex }

// ResultCacheTTL returns a sidecar key for a result's expiry instant.
// RedisColdTier does not use it: it relies on the TTL Redis keeps on the
// ResultCache key itself.
func ResultCacheTTL(fingerprintHex string) string { return "result:ttl:" + fingerprintHex }

// InFlight returns a key for marking a fingerprint's pipeline build as in
// flight. Nothing in this module uses it: the dispatcher's single-flight is
// an in-process singleflight.Group and does not coordinate across processes.
func InFlight(fingerprintHex string) string { return "inflight:" + fingerprintHex }
