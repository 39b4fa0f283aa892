package metrics

import (
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CompileRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "twarchive_compile_runs_total",
		Help: "Total timeline compile runs",
	})
	CompileErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "twarchive_compile_errors_total",
		Help: "Total failed timeline compile runs",
	})
	CompileDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "twarchive_compile_duration_seconds",
		Help:    "Timeline compile duration seconds",
		Buckets: []float64{1, 5, 15, 60, 300, 900, 3600, 4 * 3600},
	})
	DroppedTweets = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "twarchive_dropped_tweets_total",
		Help: "Timeline entries left unresolved and dropped",
	})
	FetchRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "twarchive_fetch_requests_total",
		Help: "Network fetch attempts by outcome",
	}, []string{"endpoint", "outcome"})
	APIRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "twarchive_api_retries_total",
		Help: "Total API retry attempts counted against the retry cap",
	}, []string{"endpoint"})
	CacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "twarchive_cache_hits_total",
		Help: "Responses served from the request cache",
	}, []string{"endpoint"})
	RateLimitSleep = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "twarchive_rate_limit_sleep_seconds_total",
		Help: "Seconds spent sleeping on HTTP 429",
	})
	CommandRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "twarchive_command_runs_total",
		Help: "CLI command invocations",
	}, []string{"command"})
	CommandErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "twarchive_command_errors_total",
		Help: "CLI command failures",
	}, []string{"command"})
)

func init() {
	prometheus.MustRegister(CompileRuns, CompileErrors, CompileDuration, DroppedTweets,
		FetchRequests, APIRetries, CacheHits, RateLimitSleep, CommandRuns, CommandErrors)
}

// StartServer starts a metrics HTTP server on addr (e.g., ":9090").
func StartServer(addr string) {
	if addr == "" {
		addr = os.Getenv("METRICS_ADDR")
	}
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	go func() { _ = http.ListenAndServe(addr, mux) }()
}

// ObserveCompileDuration records a run duration
func ObserveCompileDuration(start time.Time) {
	CompileDuration.Observe(time.Since(start).Seconds())
}

// IncAPIRetry increments the retry counter for an endpoint.
func IncAPIRetry(endpoint string) { APIRetries.WithLabelValues(endpoint).Inc() }

func IncFetch(endpoint, outcome string) { FetchRequests.WithLabelValues(endpoint, outcome).Inc() }

func IncCacheHit(endpoint string) { CacheHits.WithLabelValues(endpoint).Inc() }

func AddRateLimitSleep(d time.Duration) { RateLimitSleep.Add(d.Seconds()) }

func IncCommandRun(cmd string) { CommandRuns.WithLabelValues(cmd).Inc() }

func IncCommandError(cmd string) { CommandErrors.WithLabelValues(cmd).Inc() }
