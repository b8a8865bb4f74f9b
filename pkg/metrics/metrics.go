// Package metrics holds the Prometheus collectors shared by go-temi
// components. Collectors register with the default registry on import.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PerceptionSamples = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "temi_perception_samples_total",
		Help: "Perception samples classified, by distance bucket",
	}, []string{"range"})

	InterruptEscalations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "temi_interrupt_escalations_total",
		Help: "Interrupt escalations, by stage",
	}, []string{"stage"})

	InterruptWarnings = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "temi_interrupt_warnings_total",
		Help: "Spoken interrupt warnings, by cause",
	}, []string{"cause"})

	InterruptAttempts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "temi_interrupt_attempts",
		Help: "Current re-engagement attempt count",
	})

	Restarts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "temi_tour_restarts_total",
		Help: "Full tour restarts after repeated interrupt failures",
	})

	SentencesSpoken = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "temi_speech_sentences_total",
		Help: "Sentences issued to text-to-speech, by mode",
	}, []string{"mode"})

	SentenceRepeats = promauto.NewCounter(prometheus.CounterOpts{
		Name: "temi_speech_sentence_repeats_total",
		Help: "Sentences re-issued after an interrupt",
	})

	NavigationOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "temi_navigation_outcomes_total",
		Help: "Navigation calls, by outcome",
	}, []string{"outcome"})

	NavigationReissues = promauto.NewCounter(prometheus.CounterOpts{
		Name: "temi_navigation_reissues_total",
		Help: "Navigation targets re-issued after an interrupt",
	})

	DialogueOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "temi_dialogue_outcomes_total",
		Help: "Dialogue exchanges, by outcome",
	}, []string{"outcome"})

	CompletionLatencyMS = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "temi_completion_latency_ms",
		Help:    "Remote completion request latency",
		Buckets: prometheus.ExponentialBuckets(100, 1.6, 12),
	})

	Greetings = promauto.NewCounter(prometheus.CounterOpts{
		Name: "temi_greetings_total",
		Help: "Greetings spoken",
	})

	StateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "temi_tour_state_transitions_total",
		Help: "Tour state transitions",
	}, []string{"from", "to"})
)
