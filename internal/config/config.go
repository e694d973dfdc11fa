package config

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     Server     `yaml:"server" json:"server"`
	Database   Database   `yaml:"database" json:"database"`
	Auth       Auth       `yaml:"auth" json:"auth"`
	Storage    Storage    `yaml:"storage" json:"storage"`
	Minio      Minio      `yaml:"minio" json:"minio"`
	OSS        OSS        `yaml:"oss" json:"oss"`
	S3         S3         `yaml:"s3" json:"s3"`
	Upload     Upload     `yaml:"upload" json:"upload"`
	Multipart  Multipart  `yaml:"multipart" json:"multipart"`
	Automation Automation `yaml:"automation" json:"automation"`
	Redis      Redis      `yaml:"redis" json:"redis"`
	Broker     Broker     `yaml:"broker" json:"broker"`
}

// Server HTTP 服务监听配置
type Server struct {
	Addr string `yaml:"addr" json:"addr"`
}

func (s Server) AddrOrDefault() string {
	if a := strings.TrimSpace(s.Addr); a != "" {
		return a
	}
	return ":8080"
}

// LoadFromFile 读取指定路径的 YAML 配置文件
func LoadFromFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultPath 优先使用 ASSETPIPE_CONFIG，否则返回 internal/config/config.yaml 的绝对路径
func DefaultPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv("ASSETPIPE_CONFIG")); p != "" {
		return p, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, "internal", "config", "config.yaml"), nil
}

// LoadDefault 从默认路径加载配置
func LoadDefault() (*Config, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	return LoadFromFile(path)
}

// envOr 配置为空时回退到环境变量
func envOr(value string, keys ...string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}
