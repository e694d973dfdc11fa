package config

import "strings"

type Storage struct {
	Provider       string `yaml:"provider" json:"provider"`
	UploadStrategy string `yaml:"upload_strategy" json:"upload_strategy"`
}

func (s Storage) ProviderOrDefault() string {
	p := strings.ToLower(strings.TrimSpace(s.Provider))
	if p == "" {
		return "minio"
	}
	return p
}

func (s Storage) UploadStrategyOrDefault() string {
	st := strings.ToLower(strings.TrimSpace(s.UploadStrategy))
	if st == "" {
		return "presigned_put"
	}
	return st
}
