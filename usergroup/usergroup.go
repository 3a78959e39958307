// Package usergroup assigns the installation to a stable experiment cohort
// used to tag telemetry.
package usergroup

import (
	"fmt"
	"hash/fnv"
	"sync"

	"edittrack/logger"
)

// Group is an experiment-cohort label.
type Group string

const (
	GroupControl  Group = "control"
	GroupVariantA Group = "variant-a"
	GroupVariantB Group = "variant-b"

	// GroupUnknown is reported when no assignment can be read or stored.
	GroupUnknown Group = "unknown"
)

// groups is the fixed assignment set. GroupUnknown is never assigned.
var groups = []Group{GroupControl, GroupVariantA, GroupVariantB}

// Store is the persisted key-value collaborator the classifier reads and
// initializes. The store is the source of truth for the assignment.
type Store interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Delete(key string) error
}

// Classifier computes and caches the installation's group. The assignment is
// keyed by the installed version, so upgrading recomputes it while the same
// version sticks across sessions.
type Classifier struct {
	store    Store
	deviceID string
	version  string

	mu     sync.Mutex
	cached Group
}

// NewClassifier creates a classifier for the given stable device identity
// and installed version.
func NewClassifier(store Store, deviceID, version string) *Classifier {
	return &Classifier{
		store:    store,
		deviceID: deviceID,
		version:  version,
	}
}

func (c *Classifier) key() string {
	return fmt.Sprintf("usergroup/%s", c.version)
}

// Current returns the installation's group, computing and persisting it on
// first read. Purely local; never fails outward.
func (c *Classifier) Current() Group {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cached != "" {
		return c.cached
	}
	if c.store == nil {
		return GroupUnknown
	}

	if stored, ok := c.store.Get(c.key()); ok {
		if g, valid := parseGroup(stored); valid {
			c.cached = g
			return g
		}
		logger.Warn("stored user group %q is not a known group, reassigning", stored)
	}

	g := assign(c.deviceID, c.version)
	if err := c.store.Set(c.key(), string(g)); err != nil {
		logger.Warn("failed to persist user group: %v", err)
		return GroupUnknown
	}
	c.cached = g
	return g
}

// Reset clears the cached and persisted assignment so the next Current
// computes a fresh one. Test and debug use only.
func (c *Classifier) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cached = ""
	if c.store != nil {
		if err := c.store.Delete(c.key()); err != nil {
			logger.Warn("failed to clear user group: %v", err)
		}
	}
}

// assign deterministically maps identity and version onto the group set.
func assign(deviceID, version string) Group {
	h := fnv.New32a()
	h.Write([]byte(deviceID))
	h.Write([]byte(version))
	return groups[h.Sum32()%uint32(len(groups))]
}

func parseGroup(s string) (Group, bool) {
	for _, g := range groups {
		if string(g) == s {
			return g, true
		}
	}
	return GroupUnknown, false
}
