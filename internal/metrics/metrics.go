// Package metrics exposes Prometheus instrumentation for the event core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsAppended = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mittbeet_events_appended_total",
		Help: "Total number of events appended to the store, labelled by event type.",
	}, []string{"event_type"})

	AchievementsGranted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mittbeet_achievements_granted_total",
		Help: "Total number of achievement grants inserted, labelled by achievement key.",
	}, []string{"achievement"})

	EvaluatorRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mittbeet_achievement_evaluator_runs_total",
		Help: "Total number of completed achievement evaluator passes.",
	})

	AllocatorRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mittbeet_document_number_retries_total",
		Help: "Total number of document number allocation retries after collisions.",
	})

	AllocatorExhausted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mittbeet_document_number_exhausted_total",
		Help: "Total number of document number allocations abandoned after bounded retries.",
	})

	DayGateConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mittbeet_calendar_day_conflicts_total",
		Help: "Total number of calendar day opens rejected because the day was already open.",
	})
)
