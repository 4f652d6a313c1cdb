// Package main is the HTTP entry point for the LSO roll advisor: roll
// recommendations, premium comparisons, the expiration calendar and the
// day/night theme for a fixed location.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/laifehacker/lso-roll-calculator/internal/calendar"
	"github.com/laifehacker/lso-roll-calculator/internal/config"
	"github.com/laifehacker/lso-roll-calculator/internal/export"
	"github.com/laifehacker/lso-roll-calculator/internal/model"
	tracing "github.com/laifehacker/lso-roll-calculator/internal/otel"
	"github.com/laifehacker/lso-roll-calculator/internal/roll"
	"github.com/laifehacker/lso-roll-calculator/internal/security"
	"github.com/laifehacker/lso-roll-calculator/internal/solar"
	"github.com/laifehacker/lso-roll-calculator/internal/theme"
	"github.com/laifehacker/lso-roll-calculator/internal/validation"
	"github.com/laifehacker/lso-roll-calculator/internal/yield"
)

const version = "1.0.0"

// startTime records when the service was initialized for uptime reporting
var startTime = time.Now()

// Server wires the advisor components behind the HTTP surface
type Server struct {
	cfg config.Config

	seq        *calendar.Sequencer
	sun        *solar.Calculator
	engine     *roll.Engine
	comparator *yield.Comparator
	theme      *theme.Scheduler
	exporter   *export.Exporter

	metrics   *serverMetrics
	rateLimit *rate.Limiter

	// now is replaced in tests
	now func() time.Time

	server *http.Server
}

// serverMetrics holds Prometheus metrics for the server
type serverMetrics struct {
	registry *prometheus.Registry

	requestCounter   *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	recommendations  *prometheus.CounterVec
	themeTransitions *prometheus.CounterVec
}

// registerMetrics sets up Prometheus metrics collection. Theme and export
// gauges are read from their owners at scrape time.
func registerMetrics(sched *theme.Scheduler, exporter *export.Exporter) *serverMetrics {
	m := &serverMetrics{
		registry: prometheus.NewRegistry(),
		requestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lso_requests_total",
				Help: "Total number of requests processed",
			},
			[]string{"endpoint", "code"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lso_request_duration_seconds",
				Help:    "Request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		recommendations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lso_recommendations_total",
				Help: "Recommendations issued by status and evaluation mode",
			},
			[]string{"status", "mode"},
		),
		themeTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lso_theme_transitions_total",
				Help: "Theme mode changes by new mode and control",
			},
			[]string{"mode", "control"},
		),
	}

	themeDay := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "lso_theme_day",
			Help: "1 while the theme is in day mode, 0 at night",
		},
		func() float64 {
			if sched.State().Mode == model.ThemeDay {
				return 1
			}
			return 0
		},
	)
	nextWake := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "lso_theme_next_wake_timestamp_seconds",
			Help: "Unix time of the next scheduled theme evaluation",
		},
		func() float64 { return float64(sched.State().NextWake.Unix()) },
	)
	exportBuffered := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "lso_export_buffered",
			Help: "Decisions waiting for the next webhook export",
		},
		func() float64 { return float64(exporter.Status().Buffered) },
	)
	exportDropped := prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "lso_export_dropped_total",
			Help: "Decisions dropped because the export buffer was full",
		},
		func() float64 { return float64(exporter.Status().Dropped) },
	)

	m.registry.MustRegister(
		m.requestCounter,
		m.requestDuration,
		m.recommendations,
		m.themeTransitions,
		themeDay,
		nextWake,
		exportBuffered,
		exportDropped,
	)

	return m
}

// main is the entry point for the application
func main() {
	setupLogging()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("Invalid configuration: %v", err)
	}

	shutdownTracer := tracing.InitTracer(cfg)
	defer shutdownTracer()

	server, err := NewServer(cfg)
	if err != nil {
		logrus.Fatalf("Failed to initialize server: %v", err)
	}
	server.Start()
}

// setupLogging configures the logging for the application
func setupLogging() {
	logFormat := strings.ToLower(os.Getenv("LOG_FORMAT"))
	logLevel := strings.ToLower(os.Getenv("LOG_LEVEL"))

	switch logFormat {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	switch logLevel {
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "info":
		logrus.SetLevel(logrus.InfoLevel)
	case "warn", "warning":
		logrus.SetLevel(logrus.WarnLevel)
	case "error":
		logrus.SetLevel(logrus.ErrorLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}

	logrus.Info("Logging configured")
}

// NewServer builds every component from cfg. Background loops are not
// started until Start.
func NewServer(cfg config.Config) (*Server, error) {
	seq := calendar.New(cfg.Location)
	sun := solar.New(cfg.Location)

	opts := roll.DefaultOptions()
	opts.CTMMinAbsDiff = cfg.CTMMinAbsDiff

	var signer *security.Signer
	if cfg.SignExports {
		var err error
		if cfg.SigningKey != "" {
			signer, err = security.NewSignerFromHex(cfg.SigningKey)
		} else {
			signer, err = security.NewSigner()
		}
		if err != nil {
			return nil, err
		}
	}

	exporter := export.New(export.Config{
		WebhookURL: cfg.WebhookURL,
		APIKey:     cfg.WebhookAPIKey,
		Interval:   cfg.ExportInterval,
		BatchSize:  cfg.ExportBatch,
		RetryMax:   3,
	}, signer)

	sched := theme.NewScheduler(sun)
	metrics := registerMetrics(sched, exporter)
	sched.WithChangeCallback(func(prev, next model.ThemeState) {
		metrics.themeTransitions.WithLabelValues(string(next.Mode), string(next.Control)).Inc()
	})

	s := &Server{
		cfg:        cfg,
		seq:        seq,
		sun:        sun,
		engine:     roll.NewEngine(seq, opts),
		comparator: yield.NewComparator(seq, validation.DefaultInputOptions()),
		theme:      sched,
		exporter:   exporter,
		metrics:    metrics,
		now:        time.Now,
	}

	if cfg.RateLimitRPS > 0 {
		s.rateLimit = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
		logrus.Infof("Rate limiting initialized: %v req/s, burst: %d", cfg.RateLimitRPS, cfg.RateLimitBurst)
	}

	logrus.WithFields(logrus.Fields{
		"port":             cfg.Port,
		"latitude":         cfg.Location.Latitude,
		"longitude":        cfg.Location.Longitude,
		"timezone":         cfg.Location.Timezone,
		"ctm_min_abs_diff": cfg.CTMMinAbsDiff.String(),
		"export":           exporter.Enabled(),
		"signed_exports":   signer != nil,
	}).Info("Server initialized")

	return s, nil
}

// routes registers every endpoint on a fresh mux
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/advise", s.instrument("advise", http.MethodPost, s.handleAdvise))
	mux.Handle("/compare", s.instrument("compare", http.MethodPost, s.handleCompare))
	mux.Handle("/fridays", s.instrument("fridays", http.MethodGet, s.handleFridays))
	mux.Handle("/tiers", s.instrument("tiers", http.MethodGet, s.handleTiers))
	mux.Handle("/sun", s.instrument("sun", http.MethodGet, s.handleSun))
	mux.Handle("/theme", s.instrument("theme", http.MethodGet, s.handleTheme))
	mux.Handle("/theme/toggle", s.instrument("theme_toggle", http.MethodPost, s.handleThemeToggle))
	mux.Handle("/theme/reset", s.instrument("theme_reset", http.MethodPost, s.handleThemeReset))

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.Handle("/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))

	return mux
}

// Start serves HTTP, runs the theme scheduler and the exporter, and shuts
// everything down on SIGINT or SIGTERM.
func (s *Server) Start() {
	s.server = &http.Server{
		Addr:         ":" + s.cfg.Port,
		Handler:      s.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	stopTheme := s.theme.Start(context.Background())
	stopExport := s.exporter.Start(context.Background())

	go func() {
		logrus.Infof("Server starting on port %s", s.cfg.Port)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("Error starting server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		logrus.Errorf("Server shutdown failed: %v", err)
	}

	stopTheme()
	stopExport()

	logrus.Info("Server stopped")
}
