package cache

import "strings"

// Variant names a backend strategy.
type Variant int

const (
	Local Variant = iota
	Remote
	// Memcached is reserved. It has no implementation and resolves to Local.
	Memcached
)

func (v Variant) String() string {
	switch v {
	case Remote:
		return "remote"
	case Memcached:
		return "memcached"
	default:
		return "local"
	}
}

// ParseVariant maps a configured backend name onto a Variant. Matching is
// case-insensitive and accepts the legacy names "localcache" and "redis".
// The second result is false for names that match nothing, in which case
// the returned Variant is Local.
func ParseVariant(name string) (Variant, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "local", "localcache":
		return Local, true
	case "remote", "redis":
		return Remote, true
	case "memcached":
		return Memcached, true
	default:
		return Local, false
	}
}
