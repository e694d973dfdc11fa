package config

import (
	"strings"
	"time"
)

// Redis 用于多实例部署时的定时清理互斥锁；Addr 为空则只在本进程内互斥
type Redis struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
	LockKey  string `yaml:"lock_key" json:"lock_key"`
	LockTTL  string `yaml:"lock_ttl" json:"lock_ttl"`
}

func (r Redis) Enabled() bool {
	return strings.TrimSpace(r.Addr) != ""
}

func (r Redis) LockKeyOrDefault() string {
	if k := strings.TrimSpace(r.LockKey); k != "" {
		return k
	}
	return "assetpipe:cleanup:lock"
}

func (r Redis) LockTTLOrDefault() time.Duration {
	return durationOr(r.LockTTL, 10*time.Minute)
}

func (r Redis) PasswordOrEnv() string {
	return envOr(r.Password, "REDIS_PASSWORD")
}
