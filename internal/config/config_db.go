package config

import "strings"

// Database 数据库连接配置（从 YAML 读取的原始结构）
// Driver 为空时不启用数据库，清理历史只保存在内存中
type Database struct {
	Driver   string            `yaml:"driver" json:"driver"`
	Host     string            `yaml:"host" json:"host"`
	Port     int               `yaml:"port" json:"port"`
	User     string            `yaml:"user" json:"user"`
	Password string            `yaml:"password" json:"password"`
	Name     string            `yaml:"name" json:"name"`
	Params   map[string]string `yaml:"params" json:"params"`
}

func (d Database) Enabled() bool {
	return strings.TrimSpace(d.Driver) != ""
}

func (d Database) PasswordOrEnv() string {
	return envOr(d.Password, "DB_PASSWORD", "ASSETPIPE_DB_PASSWORD")
}
