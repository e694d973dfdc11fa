package config

type Minio struct {
	Endpoint      string `yaml:"endpoint" json:"endpoint"`
	AccessKey     string `yaml:"access_key" json:"access_key"`
	SecretKey     string `yaml:"secret_key" json:"secret_key"`
	Bucket        string `yaml:"bucket" json:"bucket"`
	UseSSL        bool   `yaml:"use_ssl" json:"use_ssl"`
	PublicBaseURL string `yaml:"public_base_url" json:"public_base_url"`
}

func (m Minio) SecretKeyOrEnv() string {
	return envOr(m.SecretKey, "MINIO_SECRET_KEY")
}
