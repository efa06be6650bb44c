package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "facerecon_stream_sessions_active",
		Help: "Current number of running frame extraction sessions",
	})

	ActiveFrameProcesses = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "facerecon_frame_processes_active",
		Help: "Frames currently admitted for recognition processing",
	})

	FramesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "facerecon_frames_total",
		Help: "Frames seen at the session ingest point",
	}, []string{"result", "reason"})

	SessionRestartsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "facerecon_session_restarts_total",
		Help: "Session restarts by trigger",
	}, []string{"reason"})

	FramerDropsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "facerecon_framer_accumulator_drops_total",
		Help: "JPEG framer accumulator resets due to overflow or parse errors",
	})

	DetectionsPersistedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "facerecon_detections_persisted_total",
		Help: "Detections written to storage by status",
	}, []string{"status"})

	DetectionErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "facerecon_detection_errors_total",
		Help: "Recognition worker errors by stage",
	}, []string{"stage"})

	DetectorCallDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "facerecon_detector_call_seconds",
		Help:    "Latency of detector calls",
		Buckets: prometheus.DefBuckets,
	})

	DetectorTimeoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "facerecon_detector_timeouts_total",
		Help: "Detector calls aborted by the per-call timeout",
	})

	FaceIndexSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "facerecon_index_faces",
		Help: "Searchable faces in the ANN index",
	})

	FaceIndexSearchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "facerecon_index_search_seconds",
		Help:    "Latency of ANN index searches",
		Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
	})

	OrchestratorTicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "facerecon_orchestrator_ticks_total",
		Help: "Orchestrator schedule evaluations",
	})
)
