package quota

import (
	"fmt"
	"math"
)

// ResourceKind identifies a countable resource on an owner's plan
type ResourceKind string

// Defining the resource kinds subject to plan limits
const (
	KindPlaces ResourceKind = "places"
	KindBlogs  ResourceKind = "blogs"
	KindPhotos ResourceKind = "photos"
)

// Unlimited is the plan limit marker for "no limit"
const Unlimited int = -1

// Usage is a point-in-time count of a resource kind against its plan maximum.
// Callers must recompute Current at decision time; Usage holds no state of its
// own, so stale counts from an earlier fetch never gate a create
type Usage struct {
	Current int `json:"current"`
	Max     int `json:"max"`
}

// CanAdd reports whether n more resources fit under the plan maximum.
// A zero or negative Max without the Unlimited marker fails closed
func (u Usage) CanAdd(n int) bool {
	if u.Max == Unlimited {
		return true
	}
	if u.Max <= 0 {
		return false
	}
	return u.Current+n <= u.Max
}

// CanCreate reports whether one more resource may be created
func (u Usage) CanCreate() bool {
	return u.CanAdd(1)
}

// Percentage returns how full the quota is, clamped to [0, 100].
// Unlimited is never "at capacity" visually
func (u Usage) Percentage() int {
	if u.Max == Unlimited {
		return 0
	}
	if u.Max <= 0 {
		return 100
	}
	p := int(math.Round(float64(u.Current) / float64(u.Max) * 100))
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// ExceededError reports a denied create with enough detail for the caller to
// render an upgrade prompt
type ExceededError struct {
	Kind  ResourceKind
	Usage Usage
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("plan limit reached for %s (%d of %d used)", e.Kind, e.Usage.Current, e.Usage.Max)
}

// Check gates the addition of n resources of the given kind against usage
func Check(kind ResourceKind, u Usage, n int) error {
	if u.CanAdd(n) {
		return nil
	}
	return &ExceededError{
		Kind:  kind,
		Usage: u,
	}
}
