package metricsTypes

import "time"

type IMetricsClient interface {
	Incr(name string, labels []MetricsLabel, value float64) error
	Gauge(name string, value float64, labels []MetricsLabel) error
	Timing(name string, value time.Duration, labels []MetricsLabel) error
}

type MetricsLabel struct {
	Name  string
	Value string
}

type MetricsType string

var (
	MetricsType_Incr   MetricsType = "incr"
	MetricsType_Gauge  MetricsType = "gauge"
	MetricsType_Timing MetricsType = "timing"
)

type MetricsTypeConfig struct {
	Name   string
	Labels []string
}

var (
	Metric_Incr_SyncOperation = "sync_operation"
	Metric_Incr_Discrepancy   = "discrepancy_found"
	Metric_Incr_SweepSkipped  = "sweep_account_skipped"
	Metric_Incr_HttpRequest   = "rpc_http_request"
	Metric_Incr_RateLimited   = "rpc_http_rate_limited"

	Metric_Gauge_LastSweepChecked = "sweep_last_checked_accounts"

	Metric_Timing_SyncDuration = "sync_operation_duration"
	Metric_Timing_HttpDuration = "rpc_http_duration"
)

var MetricTypes = map[MetricsType][]MetricsTypeConfig{
	MetricsType_Incr: {
		MetricsTypeConfig{
			Name:   Metric_Incr_SyncOperation,
			Labels: []string{"operation", "status"},
		},
		MetricsTypeConfig{
			Name:   Metric_Incr_Discrepancy,
			Labels: []string{"issue"},
		},
		MetricsTypeConfig{
			Name:   Metric_Incr_SweepSkipped,
			Labels: []string{},
		},
		MetricsTypeConfig{
			Name:   Metric_Incr_HttpRequest,
			Labels: []string{"path", "status"},
		},
		MetricsTypeConfig{
			Name:   Metric_Incr_RateLimited,
			Labels: []string{"path"},
		},
	},
	MetricsType_Gauge: {
		MetricsTypeConfig{
			Name:   Metric_Gauge_LastSweepChecked,
			Labels: []string{},
		},
	},
	MetricsType_Timing: {
		MetricsTypeConfig{
			Name:   Metric_Timing_SyncDuration,
			Labels: []string{"operation"},
		},
		MetricsTypeConfig{
			Name:   Metric_Timing_HttpDuration,
			Labels: []string{"path"},
		},
	},
}
