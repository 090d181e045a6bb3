package corpus

import (
	"maps"
	"slices"
	"sync"

	"github.com/kailas-cloud/trialfit/internal/domain/trial"
)

// Catalog holds the record and outcome snapshots of indexed trials.
type Catalog struct {
	mu     sync.RWMutex
	trials map[string]trial.Historical
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{trials: make(map[string]trial.Historical)}
}

// Get returns the snapshot of id.
func (c *Catalog) Get(id string) (trial.Historical, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.trials[id]
	return t, ok
}

// Len returns the number of trials.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.trials)
}

// IDs returns the trial IDs in ascending order.
func (c *Catalog) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Sorted(maps.Keys(c.trials))
}

// Put inserts or replaces one trial.
func (c *Catalog) Put(t trial.Historical) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trials[t.ID] = t
}

// Delete removes id.
func (c *Catalog) Delete(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.trials, id)
}

// Merge inserts or replaces trials, keeping the rest, and returns a copy of
// the contents before the merge.
func (c *Catalog) Merge(ts map[string]trial.Historical) map[string]trial.Historical {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := maps.Clone(c.trials)
	maps.Copy(c.trials, ts)
	return prev
}

// Replace swaps the whole contents.
func (c *Catalog) Replace(ts map[string]trial.Historical) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trials = make(map[string]trial.Historical, len(ts))
	maps.Copy(c.trials, ts)
}
