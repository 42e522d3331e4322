package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counters exposed on /metrics. Labels stay low-cardinality: reasons and
// outcomes only, never IDs.
var (
	WindowsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Name: "presence_checkin_windows_opened_total",
		Help: "Check-in windows opened by professors.",
	})

	CheckinsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "presence_checkins_recorded_total",
		Help: "Successful first-time check-in redemptions.",
	})

	CheckinsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "presence_checkins_rejected_total",
		Help: "Redemption attempts rejected, by reason.",
	}, []string{"reason"})

	Reconciliations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "presence_reconciliations_total",
		Help: "Reconciliation passes, by outcome (created, already_done, empty).",
	}, []string{"outcome"})

	AbsencesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "presence_absences_created_total",
		Help: "Absence records created by reconciliation.",
	})

	JustificationDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "presence_justification_decisions_total",
		Help: "Admin decisions on justifications, by decision.",
	}, []string{"decision"})
)
