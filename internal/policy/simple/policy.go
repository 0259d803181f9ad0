// Package simple contains a permissive fetch policy.
package simple

// Policy admits every fetch and leaves headless promotion to a static switch.
type Policy struct {
	headless bool
}

// New creates a new Policy.
func New(allowHeadless bool) *Policy {
	return &Policy{headless: allowHeadless}
}

// AllowHeadless reports the configured headless switch.
func (p Policy) AllowHeadless(_ string, _ string) bool {
	return p.headless
}

// AllowFetch always returns true.
func (Policy) AllowFetch(_ string, _ string) bool {
	return true
}
