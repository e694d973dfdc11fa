package config

import "time"

// Automation 未完成分片上传的自动清理规则
type Automation struct {
	CleanupEnabled   bool   `yaml:"cleanup_enabled" json:"cleanup_enabled"`
	CleanupThreshold string `yaml:"cleanup_threshold" json:"cleanup_threshold"`
	AbortEnabled     bool   `yaml:"abort_enabled" json:"abort_enabled"`
	AbortThreshold   string `yaml:"abort_threshold" json:"abort_threshold"`
	Interval         string `yaml:"interval" json:"interval"`
	AutoStart        bool   `yaml:"auto_start" json:"auto_start"`
}

type AutomationSettings struct {
	CleanupEnabled   bool
	CleanupThreshold time.Duration
	AbortEnabled     bool
	AbortThreshold   time.Duration
	Interval         time.Duration
	AutoStart        bool
}

func (a Automation) ToSettings() AutomationSettings {
	return AutomationSettings{
		CleanupEnabled:   a.CleanupEnabled,
		CleanupThreshold: durationOr(a.CleanupThreshold, 24*time.Hour),
		AbortEnabled:     a.AbortEnabled,
		AbortThreshold:   durationOr(a.AbortThreshold, 7*24*time.Hour),
		Interval:         durationOr(a.Interval, time.Hour),
		AutoStart:        a.AutoStart,
	}
}
