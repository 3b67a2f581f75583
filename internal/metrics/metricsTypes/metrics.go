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
	Metric_Incr_EventHandled       = "eventHandled"
	Metric_Incr_CallHandled        = "callHandled"
	Metric_Incr_VersionGateSkip    = "versionGateSkip"
	Metric_Incr_DataQualityAnomaly = "dataQualityAnomaly"
	Metric_Incr_PriceCascadeMiss   = "priceCascadeMiss"
	Metric_Incr_DuplicateEntity    = "duplicateEntity"

	Metric_Gauge_LastBlockProcessed = "lastBlockProcessed"

	Metric_Timing_BlockProcessDuration = "block.process.duration"
)

var MetricTypes = map[MetricsType][]MetricsTypeConfig{
	MetricsType_Incr: {
		MetricsTypeConfig{
			Name:   Metric_Incr_EventHandled,
			Labels: []string{"model", "eventName"},
		},
		MetricsTypeConfig{
			Name:   Metric_Incr_CallHandled,
			Labels: []string{"model", "callName"},
		},
		MetricsTypeConfig{
			Name:   Metric_Incr_VersionGateSkip,
			Labels: []string{"callName"},
		},
		MetricsTypeConfig{
			Name:   Metric_Incr_DataQualityAnomaly,
			Labels: []string{"kind"},
		},
		MetricsTypeConfig{
			Name:   Metric_Incr_PriceCascadeMiss,
			Labels: []string{},
		},
		MetricsTypeConfig{
			Name:   Metric_Incr_DuplicateEntity,
			Labels: []string{"entity"},
		},
	},
	MetricsType_Gauge: {
		MetricsTypeConfig{
			Name:   Metric_Gauge_LastBlockProcessed,
			Labels: []string{},
		},
	},
	MetricsType_Timing: {
		MetricsTypeConfig{
			Name:   Metric_Timing_BlockProcessDuration,
			Labels: []string{},
		},
	},
}
