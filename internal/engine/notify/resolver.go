package notify

import (
	"errors"
	"fmt"
	"sync"

	"dingbot/internal/engine/dingtalk"
	"dingbot/internal/platform/config"
	"dingbot/internal/platform/models"
	"dingbot/internal/platform/repositories"
)

var (
	ErrUnknownRobot  = errors.New("unknown robot")
	ErrRobotDisabled = errors.New("robot disabled")
	ErrNoRobot       = errors.New("no robot given and no default_robot configured")
)

// RobotStore is the registry lookup the resolver falls back to.
type RobotStore interface {
	GetByName(name string) (*models.Robot, error)
}

// Resolver maps robot names to endpoints. Robots from the config file win
// over registry entries with the same name.
type Resolver struct {
	mu           sync.RWMutex
	static       map[string]config.RobotConfig
	defaultRobot string

	store RobotStore
	cache *robotCache
}

func NewResolver(cfg *config.Config, store RobotStore) *Resolver {
	r := &Resolver{store: store}
	r.Reload(cfg)
	return r
}

// Reload swaps the statically configured robots and drops cached registry
// lookups.
func (r *Resolver) Reload(cfg *config.Config) {
	static := make(map[string]config.RobotConfig)
	defaultRobot := ""
	var cache *robotCache
	if cfg != nil {
		for _, robot := range cfg.Robots {
			if robot.Name != "" {
				static[robot.Name] = robot
			}
		}
		defaultRobot = cfg.DefaultRobot
		if cfg.Database.RobotCacheTTL > 0 {
			cache = newRobotCache(cfg.Database.RobotCacheTTL)
		}
	}

	r.mu.Lock()
	r.static = static
	r.defaultRobot = defaultRobot
	r.cache = cache
	r.mu.Unlock()
}

// Name returns the robot a send to name goes to.
func (r *Resolver) Name(name string) string {
	if name != "" {
		return name
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultRobot
}

// Resolve returns the endpoint for name; an empty name selects default_robot.
func (r *Resolver) Resolve(name string) (dingtalk.Endpoint, error) {
	r.mu.RLock()
	if name == "" {
		name = r.defaultRobot
	}
	robot, ok := r.static[name]
	cache := r.cache
	r.mu.RUnlock()

	if name == "" {
		return dingtalk.Endpoint{}, ErrNoRobot
	}
	if ok {
		return dingtalk.NewEndpoint(robot.Webhook, robot.Secret), nil
	}

	if r.store == nil {
		return dingtalk.Endpoint{}, fmt.Errorf("%w: %s", ErrUnknownRobot, name)
	}

	stored, err := r.lookup(name, cache)
	if err != nil {
		return dingtalk.Endpoint{}, err
	}
	if !stored.Active() {
		return dingtalk.Endpoint{}, fmt.Errorf("%w: %s", ErrRobotDisabled, name)
	}

	return dingtalk.NewEndpoint(stored.WebhookURL, stored.Secret), nil
}

// Forget drops cached registry lookups for names so the next send sees the
// current registry row.
func (r *Resolver) Forget(names ...string) {
	r.mu.RLock()
	cache := r.cache
	r.mu.RUnlock()
	if cache == nil {
		return
	}
	for _, name := range names {
		cache.Delete(name)
	}
}

func (r *Resolver) lookup(name string, cache *robotCache) (*models.Robot, error) {
	if cache != nil {
		if robot, ok := cache.Get(name); ok {
			return robot, nil
		}
	}

	stored, err := r.store.GetByName(name)
	if errors.Is(err, repositories.ErrRobotNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRobot, name)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup robot %s: %w", name, err)
	}

	if cache != nil {
		cache.Set(name, stored)
	}
	return stored, nil
}
