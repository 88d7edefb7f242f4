package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
default_robot: ops
robots:
  - name: ops
    webhook: https://oapi.dingtalk.com/robot/send?access_token=abc
    secret: "  SEC123  "
queue:
  backend: redis
  redis:
    addr: redis:6379
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("Expected default read timeout, got %v", cfg.Server.ReadTimeout)
	}
	if cfg.Queue.Backend != "redis" || cfg.Queue.Redis.Addr != "redis:6379" {
		t.Errorf("Unexpected queue config %#v", cfg.Queue)
	}
	if cfg.Queue.Redis.Key != "dingbot:notifications" {
		t.Errorf("Expected default redis key, got %s", cfg.Queue.Redis.Key)
	}

	robot, ok := cfg.Robot("ops")
	if !ok {
		t.Fatal("Expected robot ops")
	}
	if robot.Secret != "SEC123" {
		t.Errorf("Expected trimmed secret, got %q", robot.Secret)
	}
	if _, ok := cfg.Robot("missing"); ok {
		t.Error("Expected missing robot to be absent")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestWatch(t *testing.T) {
	path := writeConfig(t, "default_robot: ops\n")

	changed := make(chan *Config, 4)
	if err := Watch(path, func(c *Config) { changed <- c }, nil); err != nil {
		t.Fatalf("Watch() error: %v", err)
	}

	if err := os.WriteFile(path, []byte("default_robot: alerts\n"), 0644); err != nil {
		t.Fatalf("Failed to rewrite config: %v", err)
	}

	timeout := time.After(5 * time.Second)
	for {
		select {
		case c := <-changed:
			if c.DefaultRobot == "alerts" {
				return
			}
		case <-timeout:
			t.Fatal("Timed out waiting for config reload")
		}
	}
}
