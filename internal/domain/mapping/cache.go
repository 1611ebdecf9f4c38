package mapping

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// BaseCache is a read-through cache of base datasets keyed by project.
// Concurrent misses for the same project share one load. Entries live until
// Invalidate is called; failed loads are not cached.
type BaseCache struct {
	source BaseSource
	logger zerolog.Logger

	mu    sync.RWMutex
	rows  map[string][]Row
	group singleflight.Group
}

func NewBaseCache(source BaseSource, logger zerolog.Logger) *BaseCache {
	return &BaseCache{
		source: source,
		logger: logger,
		rows:   make(map[string][]Row),
	}
}

// Get returns the base rows of project. The returned slice is shared and
// must not be modified.
func (c *BaseCache) Get(ctx context.Context, token, project string) ([]Row, error) {
	c.mu.RLock()
	rows, ok := c.rows[project]
	c.mu.RUnlock()
	if ok {
		return rows, nil
	}

	v, err, shared := c.group.Do(project, func() (interface{}, error) {
		rows, err := c.source.Load(ctx, token, project)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.rows[project] = rows
		c.mu.Unlock()
		c.logger.Debug().Str("project", project).Int("rows", len(rows)).Msg("base dataset loaded")
		return rows, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.Debug().Str("project", project).Msg("base load shared with concurrent request")
	}
	return v.([]Row), nil
}

// Invalidate drops the cached base of project.
func (c *BaseCache) Invalidate(project string) {
	c.mu.Lock()
	delete(c.rows, project)
	c.mu.Unlock()
	c.group.Forget(project)
}

// Len returns the number of cached projects.
func (c *BaseCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.rows)
}
