package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// CredentialsIssued 签发的上传凭证，按用途与策略区分
	CredentialsIssued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "assetpipe",
		Subsystem: "upload",
		Name:      "credentials_issued_total",
		Help:      "Upload credentials issued",
	}, []string{"purpose", "strategy"})

	// UploadRejections 校验失败的签名请求
	UploadRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "assetpipe",
		Subsystem: "upload",
		Name:      "rejections_total",
		Help:      "Sign requests rejected by validation",
	}, []string{"purpose", "reason"}) // reason: invalid_content_type, file_too_large, missing_context, empty_file

	UploadsConfirmed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "assetpipe",
		Subsystem: "upload",
		Name:      "confirmed_total",
		Help:      "Uploads confirmed after the object was found in storage",
	}, []string{"purpose", "result"}) // result: success, not_found

	MultipartSessions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "assetpipe",
		Subsystem: "multipart",
		Name:      "sessions_total",
		Help:      "Multipart session transitions",
	}, []string{"event"}) // event: created, completed, aborted, complete_failed

	CleanupAborts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "assetpipe",
		Subsystem: "cleanup",
		Name:      "aborts_total",
		Help:      "Incomplete multipart sessions aborted by cleanup",
	}, []string{"trigger", "result"}) // trigger: manual, cleanup_rule, abort_rule

	CleanupRunDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "assetpipe",
		Subsystem: "cleanup",
		Name:      "run_duration_seconds",
		Help:      "Time spent in one cleanup run",
		Buckets:   prometheus.DefBuckets,
	}, []string{"trigger"})

	AutomationRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "assetpipe",
		Subsystem: "cleanup",
		Name:      "automation_running",
		Help:      "1 while the scheduled cleanup loop is running",
	})
)

var registerOnce sync.Once

// Register 注册所有指标，重复调用无副作用
func Register(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		reg.MustRegister(
			CredentialsIssued,
			UploadRejections,
			UploadsConfirmed,
			MultipartSessions,
			CleanupAborts,
			CleanupRunDuration,
			AutomationRunning,
		)
	})
}
