package monitoring

import (
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// KubernetesLabels holds Kubernetes metadata labels
var (
	kubernetesNamespace = os.Getenv("KUBERNETES_NAMESPACE")
	kubernetesPodName   = os.Getenv("KUBERNETES_POD_NAME")
)

// getKubernetesLabels returns the Kubernetes labels for metrics
func getKubernetesLabels() prometheus.Labels {
	labels := prometheus.Labels{}

	if kubernetesNamespace != "" {
		labels["kubernetes_namespace"] = kubernetesNamespace
	}
	if kubernetesPodName != "" {
		labels["kubernetes_pod_name"] = kubernetesPodName
	}

	return labels
}

// Registry with Kubernetes labels
var (
	Registry = prometheus.NewRegistry()
	factory  = promauto.With(prometheus.WrapRegistererWith(getKubernetesLabels(), Registry))
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Prometheus metrics for the file encryptor
var (
	// HTTP Request metrics
	RequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "encryptor_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	RequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "encryptor_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	ActiveConnections = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "encryptor_active_connections",
			Help: "Number of active connections",
		},
	)

	// Orchestrated operation metrics
	OperationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "encryptor_operations_total",
			Help: "Total number of orchestrated operations by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	OperationDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "encryptor_operation_duration_seconds",
			Help:    "Operation duration in seconds, including the wait for the operation gate",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
		},
		[]string{"kind"},
	)

	OperationsInFlight = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "encryptor_operations_in_flight",
			Help: "Number of operations currently holding the operation gate",
		},
	)

	// Engine process metrics
	EngineInvocationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "encryptor_engine_invocations_total",
			Help: "Total number of engine child processes by command and status",
		},
		[]string{"command", "status"},
	)

	EngineDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "encryptor_engine_duration_seconds",
			Help:    "Engine child process run time in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
		},
		[]string{"command"},
	)

	// Key store metrics
	KeyUpdatesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "encryptor_key_updates_total",
			Help: "Total number of key update attempts",
		},
		[]string{"status"},
	)

	// Upload metrics
	UploadsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "encryptor_uploads_total",
			Help: "Total number of upload ingest attempts",
		},
		[]string{"status"},
	)

	UploadBytesTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "encryptor_upload_bytes_total",
			Help: "Total bytes stored by upload ingest",
		},
	)

	MirrorUploadsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "encryptor_mirror_uploads_total",
			Help: "Total number of uploads replicated to the mirror bucket",
		},
		[]string{"status"},
	)

	// Preview metrics
	PreviewsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "encryptor_previews_total",
			Help: "Total number of previews served by payload kind",
		},
		[]string{"kind"},
	)

	// Registry metrics
	RegistryScanErrorsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "encryptor_registry_scan_errors_total",
			Help: "Storage roots that could not be read during a listing",
		},
		[]string{"root"},
	)

	// Server metrics
	ServerInfo = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "encryptor_server_info",
			Help: "Server build information",
		},
		[]string{"version", "commit", "build_time"},
	)
)

// SetServerInfo sets server build information
func SetServerInfo(version, commit, buildTime string) {
	ServerInfo.WithLabelValues(version, commit, buildTime).Set(1)
}

// RecordOperation records one completed orchestrated operation
func RecordOperation(kind, outcome string, duration time.Duration) {
	OperationsTotal.WithLabelValues(kind, outcome).Inc()
	OperationDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordEngineInvocation records one engine child process
func RecordEngineInvocation(command, status string, duration time.Duration) {
	EngineInvocationsTotal.WithLabelValues(command, status).Inc()
	EngineDuration.WithLabelValues(command).Observe(duration.Seconds())
}

// RecordKeyUpdate records a key update attempt
func RecordKeyUpdate(status string) {
	KeyUpdatesTotal.WithLabelValues(status).Inc()
}

// RecordUpload records an ingest attempt and the stored size on success
func RecordUpload(status string, bytes int64) {
	UploadsTotal.WithLabelValues(status).Inc()
	if bytes > 0 {
		UploadBytesTotal.Add(float64(bytes))
	}
}

// RecordMirrorUpload records a mirror replication attempt
func RecordMirrorUpload(status string) {
	MirrorUploadsTotal.WithLabelValues(status).Inc()
}

// RecordPreview records a served preview
func RecordPreview(kind string) {
	PreviewsTotal.WithLabelValues(kind).Inc()
}

// RecordScanError records a storage root that failed to list
func RecordScanError(root string) {
	RegistryScanErrorsTotal.WithLabelValues(root).Inc()
}
