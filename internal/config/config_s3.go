package config

// S3 AWS S3 或兼容 S3 协议的存储（R2、Ceph 等）
type S3 struct {
	Region          string `yaml:"region" json:"region"`
	Endpoint        string `yaml:"endpoint" json:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id" json:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key" json:"secret_access_key"`
	SessionToken    string `yaml:"session_token" json:"session_token"`
	Bucket          string `yaml:"bucket" json:"bucket"`
	UsePathStyle    bool   `yaml:"use_path_style" json:"use_path_style"`
	PublicBaseURL   string `yaml:"public_base_url" json:"public_base_url"`
}

func (s S3) SecretAccessKeyOrEnv() string {
	return envOr(s.SecretAccessKey, "AWS_SECRET_ACCESS_KEY")
}
