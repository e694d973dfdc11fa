package auth

import "time"

const (
	DefaultLeeway = 30 * time.Second
	DevSecret     = "dev-secret-change-me"
)
