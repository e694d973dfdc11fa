package config

import (
	"strings"
	"time"

	"assetpipe/internal/logger"
	"assetpipe/internal/server/auth"
)

// Auth 认证相关配置（从 YAML 读取的原始结构）
// 令牌签发由外部账号系统负责，这里只需要校验
type Auth struct {
	JWTSecret string `yaml:"jwt_secret" json:"jwt_secret"`
	Issuer    string `yaml:"issuer" json:"issuer"`
	Leeway    string `yaml:"leeway" json:"leeway"`
}

// AuthSettings 为运行时使用的认证配置（已解析为具体类型）
type AuthSettings struct {
	JWTSecret string
	Issuer    string
	Leeway    time.Duration
}

// ToSettings 解析时长并应用默认值
// 若未在配置文件提供 JWTSecret，则从环境变量回退，最后采用开发默认值
func (a Auth) ToSettings() AuthSettings {
	secret := envOr(a.JWTSecret, "JWT_SECRET", "ASSETPIPE_JWT_SECRET")
	if secret == "" {
		logger.Warn().Msg("未配置 JWT_SECRET，使用开发默认值。请设置 JWT_SECRET 环境变量或配置文件！")
		secret = auth.DevSecret
	}
	return AuthSettings{
		JWTSecret: secret,
		Issuer:    strings.TrimSpace(a.Issuer),
		Leeway:    durationOr(a.Leeway, auth.DefaultLeeway),
	}
}
