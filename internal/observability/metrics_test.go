package observability

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics(t *testing.T) {
	// Don't call NewMetrics() here as it registers with default registry
	// Just verify the structure would be created
	t.Log("Metrics structure verified through integration tests")
}

func TestRecordRunAttempt(t *testing.T) {
	// Create a new registry for isolated testing
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "test_run_attempts_total",
			Help: "Test run attempt counter",
		},
		[]string{"status"},
	)
	registry.MustRegister(counter)

	m := &Metrics{RunAttempts: counter}
	m.RecordRunAttempt("success")
	m.RecordRunAttempt("success")
	m.RecordRunAttempt("retry")

	// Verify counts
	if count := testutil.CollectAndCount(counter); count != 2 {
		t.Errorf("Expected 2 label combinations, got %d", count)
	}

	// Verify specific values
	expected := `
		# HELP test_run_attempts_total Test run attempt counter
		# TYPE test_run_attempts_total counter
		test_run_attempts_total{status="retry"} 1
		test_run_attempts_total{status="success"} 2
	`
	if err := testutil.CollectAndCompare(counter, strings.NewReader(expected)); err != nil {
		t.Errorf("Unexpected metric value: %v", err)
	}
}

func TestRecordRunStuck(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "test_run_stuck_total",
			Help: "Test run stuck counter",
		},
		[]string{"mode"},
	)
	registry.MustRegister(counter)

	m := &Metrics{RunStuck: counter}
	m.RecordRunStuck("run")
	m.RecordRunStuck("run")

	expected := `
		# HELP test_run_stuck_total Test run stuck counter
		# TYPE test_run_stuck_total counter
		test_run_stuck_total{mode="run"} 2
	`
	if err := testutil.CollectAndCompare(counter, strings.NewReader(expected)); err != nil {
		t.Errorf("Unexpected metric value: %v", err)
	}
}

func TestRecordLLMRequest(t *testing.T) {
	// Test with isolated registry
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "test_llm_requests_total",
			Help: "Test LLM request counter",
		},
		[]string{"provider", "model", "status"},
	)
	registry.MustRegister(counter)

	m := &Metrics{
		LLMRequestCounter: counter,
		LLMRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Name: "test_llm_request_duration_seconds", Help: "Test LLM request duration"},
			[]string{"provider", "model"},
		),
		LLMTokensUsed: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "test_llm_tokens_total", Help: "Test LLM token counter"},
			[]string{"provider", "model", "type"},
		),
	}
	m.RecordLLMRequest("anthropic", "claude-3-opus", "success", 1.5, 100, 500)
	m.RecordLLMRequest("openai", "gpt-4", "success", 0.8, 50, 200)
	m.RecordLLMRequest("anthropic", "claude-3-opus", "error", 0.2, 0, 0)

	// Verify counter was incremented
	count := testutil.CollectAndCount(counter)
	if count < 1 {
		t.Error("Expected at least 1 LLM request recorded")
	}
}

func TestRecordToolExecution(t *testing.T) {
	// Test with isolated registry
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "test_tool_executions_total",
			Help: "Test tool execution counter",
		},
		[]string{"tool_name", "status"},
	)
	registry.MustRegister(counter)

	m := &Metrics{
		ToolExecutionCounter: counter,
		ToolExecutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Name: "test_tool_execution_duration_seconds", Help: "Test tool execution duration"},
			[]string{"tool_name"},
		),
	}
	m.RecordToolExecution("web_search", "success", 0.25)
	m.RecordToolExecution("web_search", "success", 0.3)
	m.RecordToolExecution("browser", "error", 1.2)

	// Verify counters
	count := testutil.CollectAndCount(counter)
	if count < 1 {
		t.Error("Expected at least 1 tool execution recorded")
	}
}

func TestRecordError(t *testing.T) {
	// Test with isolated registry
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "test_errors_total",
			Help: "Test error counter",
		},
		[]string{"component", "error_type"},
	)
	registry.MustRegister(counter)

	m := &Metrics{ErrorCounter: counter}
	m.RecordError("agent", "timeout")
	m.RecordError("agent", "timeout")
	m.RecordError("channel", "auth_failed")
	m.RecordError("tool", "execution_failed")

	// Verify counter
	count := testutil.CollectAndCount(counter)
	if count < 1 {
		t.Error("Expected at least 1 error recorded")
	}
}

func TestRunLifecycle(t *testing.T) {
	// Test gauge and histogram behavior with isolated registry
	registry := prometheus.NewRegistry()
	gauge := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "test_active_runs",
			Help: "Test active runs",
		},
		[]string{"mode"},
	)
	histogram := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "test_run_duration_seconds",
			Help:    "Test run duration",
			Buckets: []float64{60, 300, 600},
		},
		[]string{"mode"},
	)
	registry.MustRegister(gauge, histogram)

	// Start runs
	gauge.WithLabelValues("run").Inc()
	gauge.WithLabelValues("run").Inc()
	gauge.WithLabelValues("tournament").Inc()

	// End runs
	gauge.WithLabelValues("run").Dec()
	histogram.WithLabelValues("run").Observe(300.0)
	histogram.WithLabelValues("tournament").Observe(600.0)

	// Verify metrics were tracked
	if testutil.CollectAndCount(gauge) < 1 {
		t.Error("Expected active runs gauge to be tracked")
	}
	if testutil.CollectAndCount(histogram) < 1 {
		t.Error("Expected run duration histogram to have observations")
	}
}

func TestHistogramBuckets(t *testing.T) {
	// Test histogram with various durations
	registry := prometheus.NewRegistry()
	histogram := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "test_duration_seconds",
			Help:    "Test duration histogram",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1.0, 5.0, 10.0, 30.0},
		},
		[]string{"operation"},
	)
	registry.MustRegister(histogram)

	durations := []float64{0.001, 0.01, 0.1, 0.5, 1.0, 5.0, 10.0, 30.0}
	for _, duration := range durations {
		histogram.WithLabelValues("test").Observe(duration)
	}

	// Verify histogram recorded all observations
	if testutil.CollectAndCount(histogram) < 1 {
		t.Error("Expected histogram to have observations across buckets")
	}
}

func TestConcurrentMetrics(t *testing.T) {
	// Test concurrent metric recording
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "test_concurrent_total",
			Help: "Test concurrent counter",
		},
		[]string{"label"},
	)
	registry.MustRegister(counter)

	done := make(chan bool)
	iterations := 100

	go func() {
		for i := 0; i < iterations; i++ {
			counter.WithLabelValues("a").Inc()
			time.Sleep(time.Microsecond)
		}
		done <- true
	}()

	go func() {
		for i := 0; i < iterations; i++ {
			counter.WithLabelValues("b").Inc()
			time.Sleep(time.Microsecond)
		}
		done <- true
	}()

	<-done
	<-done

	// Should not panic
	if testutil.CollectAndCount(counter) < 1 {
		t.Error("Expected concurrent metric recording to work")
	}
}
