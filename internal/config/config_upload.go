package config

import (
	"strings"
	"time"
)

const (
	DefaultTokenTTL       = time.Hour
	DefaultPartURLTTL     = 15 * time.Minute
	DefaultDownloadURLTTL = 15 * time.Minute
	DefaultPartSizeBytes  = 16 * 1024 * 1024
)

// Upload 单次上传凭证相关配置
type Upload struct {
	TokenTTL       string `yaml:"token_ttl" json:"token_ttl"`
	PartURLTTL     string `yaml:"part_url_ttl" json:"part_url_ttl"`
	DownloadURLTTL string `yaml:"download_url_ttl" json:"download_url_ttl"`
}

type UploadSettings struct {
	TokenTTL       time.Duration
	PartURLTTL     time.Duration
	DownloadURLTTL time.Duration
}

func (u Upload) ToSettings() UploadSettings {
	return UploadSettings{
		TokenTTL:       durationOr(u.TokenTTL, DefaultTokenTTL),
		PartURLTTL:     durationOr(u.PartURLTTL, DefaultPartURLTTL),
		DownloadURLTTL: durationOr(u.DownloadURLTTL, DefaultDownloadURLTTL),
	}
}

// Multipart 分片上传配置；PartSizeBytes 由服务端决定，启动时校验下限
type Multipart struct {
	PartSizeBytes int64 `yaml:"part_size_bytes" json:"part_size_bytes"`
}

func (m Multipart) PartSizeOrDefault() int64 {
	if m.PartSizeBytes == 0 {
		return DefaultPartSizeBytes
	}
	return m.PartSizeBytes
}

// durationOr 解析 YAML 中的字符串时长，非法或非正值时使用默认值
func durationOr(s string, def time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return def
}
