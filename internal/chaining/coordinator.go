// Package chaining implements the parent->child endpoint relationship of
// spec.md §4.3: a parent's extracted records publish values that drive
// each child's next poll, templated in as ${parent_value} and
// ${parent_api_id}. Concurrency shape is single-writer-per-parent,
// multi-reader-children, grounded on the teacher's RWMutex-guarded
// registration map (core/redis_registry.go's registrationState) rather than
// a channel-based design, since children read far more often than parents
// write.
package chaining

import (
	"fmt"
	"sync"

	"github.com/leon4s4/httpsource/internal/classify"
)

// ParentValue is one value published by a parent endpoint for its children
// to consume on their next poll.
type ParentValue struct {
	ParentAPIID string
	Value       string
}

// Coordinator tracks, per parent endpoint id, the most recently published
// value, and reports which child endpoints are ready to poll.
type Coordinator struct {
	mu sync.RWMutex

	// parentOf maps child id -> parent id, the same relationship
	// config.TaskConfig.ChainingParentOf carries; duplicated here so the
	// coordinator is self-contained and independently testable.
	parentOf map[string]string
	children map[string][]string // parent id -> child ids

	latest map[string]ParentValue // parent id -> last published value
	ready  map[string]bool        // child id -> has a value ever been published for its parent
}

// New builds a Coordinator from the child->parent relationship validated by
// config.TaskConfig.Validate (unknown-endpoint and cycle checks already
// happened there; New trusts its input).
func New(parentOf map[string]string) *Coordinator {
	children := make(map[string][]string, len(parentOf))
	for child, parent := range parentOf {
		children[parent] = append(children[parent], child)
	}
	return &Coordinator{
		parentOf: parentOf,
		children: children,
		latest:   make(map[string]ParentValue),
		ready:    make(map[string]bool),
	}
}

// PublishParent records the value a parent endpoint just extracted and
// marks every direct child as ready to poll. Single-writer per parent is
// the caller's responsibility (the engine serializes polls per endpoint),
// so this only needs to guard against concurrent reads from children.
func (c *Coordinator) PublishParent(parentID, parentAPIID, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latest[parentID] = ParentValue{ParentAPIID: parentAPIID, Value: value}
	for _, child := range c.children[parentID] {
		c.ready[child] = true
	}
}

// ReadyFor reports whether childID has ever received a value from its
// parent. A child with no configured parent is always ready (it isn't
// actually chained, spec.md §4.3 invariant: non-chained endpoints are
// unaffected by the coordinator).
func (c *Coordinator) ReadyFor(childID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, chained := c.parentOf[childID]; !chained {
		return true
	}
	return c.ready[childID]
}

// VariablesFor returns the template variables ${parent_value} and
// ${parent_api_id} for childID, as consumed by internal/template.Expand.
// Returns classify.ErrUnknownEndpoint if childID has no parent, or
// classify.ErrCircularChaining's sibling condition "not ready yet" surfaced
// instead as ok=false so callers can distinguish "skip this tick" from a
// hard configuration error.
func (c *Coordinator) VariablesFor(childID string) (vars map[string]string, ok bool, err error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	parent, chained := c.parentOf[childID]
	if !chained {
		return nil, false, fmt.Errorf("%w: %q has no configured parent", classify.ErrUnknownEndpoint, childID)
	}
	value, published := c.latest[parent]
	if !published {
		return nil, false, nil
	}
	return map[string]string{
		"parent_value":  value.Value,
		"parent_api_id": value.ParentAPIID,
	}, true, nil
}
