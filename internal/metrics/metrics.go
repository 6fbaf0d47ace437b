// Package metrics instruments fits, predictions and model persistence.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors. A nil *Metrics records nothing.
type Metrics struct {
	FitDuration     *prometheus.HistogramVec
	FitTotal        *prometheus.CounterVec
	PredictDuration prometheus.Histogram
	PredictTotal    *prometheus.CounterVec
	ForecastRows    prometheus.Gauge
	ModelIOTotal    *prometheus.CounterVec
	ModelBytes      prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FitDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "loadforecast_fit_duration_seconds",
			Help:    "Duration of model fits",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"warm_start"}),
		FitTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "loadforecast_fit_total",
			Help: "Number of model fits by outcome",
		}, []string{"status"}),
		PredictDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "loadforecast_predict_duration_seconds",
			Help:    "Duration of forecast predictions",
			Buckets: prometheus.DefBuckets,
		}),
		PredictTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "loadforecast_predict_total",
			Help: "Number of forecast predictions by outcome",
		}, []string{"status"}),
		ForecastRows: factory.NewGauge(prometheus.GaugeOpts{
			Name: "loadforecast_forecast_rows",
			Help: "Rows in the last forecast table",
		}),
		ModelIOTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "loadforecast_model_io_total",
			Help: "Model save and load operations by outcome",
		}, []string{"op", "status"}),
		ModelBytes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "loadforecast_model_document_bytes",
			Help: "Size of the last saved or loaded model document",
		}),
	}
}

// ObserveFit records one fit.
func (m *Metrics) ObserveFit(d time.Duration, warmStart bool, err error) {
	if m == nil {
		return
	}
	label := "false"
	if warmStart {
		label = "true"
	}
	m.FitDuration.WithLabelValues(label).Observe(d.Seconds())
	m.FitTotal.WithLabelValues(status(err)).Inc()
}

// ObservePredict records one prediction.
func (m *Metrics) ObservePredict(d time.Duration, rows int, err error) {
	if m == nil {
		return
	}
	m.PredictDuration.Observe(d.Seconds())
	m.PredictTotal.WithLabelValues(status(err)).Inc()
	if err == nil {
		m.ForecastRows.Set(float64(rows))
	}
}

// ObserveModelIO records a save or load of a model document.
func (m *Metrics) ObserveModelIO(op string, size int, err error) {
	if m == nil {
		return
	}
	m.ModelIOTotal.WithLabelValues(op, status(err)).Inc()
	if err == nil {
		m.ModelBytes.Set(float64(size))
	}
}

// WriteTextfile writes the gathered metrics in the text exposition format,
// for the node exporter textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
