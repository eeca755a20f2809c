// Package metrics はゲートウェイのPrometheusメトリクスを提供する。
//
// コレクタはインスタンスごとのレジストリに登録されるため、
// テストでは独立したインスタンスを生成して使用できる。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gateway"

// Metrics はゲートウェイで収集するメトリクスの集合。
type Metrics struct {
	// Registry はコレクタを登録したPrometheusレジストリ。
	Registry *prometheus.Registry
	// Requests はHTTPリクエスト数（メソッド・ステータス別）。
	Requests *prometheus.CounterVec
	// Duration はHTTPリクエストの処理時間。
	Duration *prometheus.HistogramVec
	// Rejections はアドミッションフィルタによる拒否数（理由別）。
	Rejections *prometheus.CounterVec
	// Connections は接続中のWebSocket数。
	Connections prometheus.Gauge
	// Notifications は通知の送信結果数（結果別）。
	Notifications *prometheus.CounterVec
}

// New は新しいレジストリにコレクタを登録したMetricsを生成する。
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests handled.",
			},
			[]string{"method", "status"},
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests.",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
			},
			[]string{"method"},
		),
		Rejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "admission",
				Name:      "rejections_total",
				Help:      "Total number of requests rejected by admission filters.",
			},
			[]string{"reason"},
		),
		Connections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "websocket",
				Name:      "connections",
				Help:      "Current number of open WebSocket connections.",
			},
		),
		Notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "notifications",
				Name:      "sent_total",
				Help:      "Total number of notification deliveries by result.",
			},
			[]string{"result"},
		),
	}

	m.Registry.MustRegister(
		m.Requests,
		m.Duration,
		m.Rejections,
		m.Connections,
		m.Notifications,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return m
}

// Handler はレジストリの内容を公開するHTTPハンドラを返す。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
