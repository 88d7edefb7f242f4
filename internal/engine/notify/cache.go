package notify

import (
	"sync"
	"time"

	"dingbot/internal/platform/models"
)

type cachedRobot struct {
	robot    models.Robot
	cachedAt time.Time
}

// robotCache holds registry lookups by robot name for ttl.
type robotCache struct {
	store sync.Map // map[name]*cachedRobot
	ttl   time.Duration
	now   func() time.Time
}

func newRobotCache(ttl time.Duration) *robotCache {
	return &robotCache{ttl: ttl, now: time.Now}
}

func (c *robotCache) Get(name string) (*models.Robot, bool) {
	val, ok := c.store.Load(name)
	if !ok {
		return nil, false
	}

	entry := val.(*cachedRobot)
	if c.now().Sub(entry.cachedAt) > c.ttl {
		c.store.Delete(name)
		return nil, false
	}

	robot := entry.robot
	return &robot, true
}

func (c *robotCache) Set(name string, robot *models.Robot) {
	c.store.Store(name, &cachedRobot{robot: *robot, cachedAt: c.now()})
}

func (c *robotCache) Delete(name string) {
	c.store.Delete(name)
}
