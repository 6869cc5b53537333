package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var eventProcessDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name: "automod_event_duration_sec",
	Help: "Total duration of automod event processing",
}, []string{"type"})

var eventProcessCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_event_processed",
	Help: "Number of events processed",
}, []string{"type"})

var eventErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_event_errors",
	Help: "Number of events which failed processing",
}, []string{"type"})

var ruleErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_rule_errors",
	Help: "Number of rule evaluations which failed, by trigger type",
}, []string{"trigger"})

var ruleMatchCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_rule_matches",
	Help: "Number of rule matches, by trigger type and whether actions ran",
}, []string{"trigger", "executed"})

var gateRejectCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_gate_rejections",
	Help: "Number of rule evaluations stopped by a gate (cooldown, schedule, exception)",
}, []string{"gate"})

var conditionRejectCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_condition_rejections",
	Help: "Number of trigger matches rejected by a rule condition",
}, []string{"condition"})

var actionCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_actions",
	Help: "Number of executed actions, by type and outcome",
}, []string{"type", "outcome"})

var circuitBreakCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_circuit_breaks",
	Help: "Number of actions blocked by a daily quota",
}, []string{"kind"})

var classifierVerdictCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_classifier_verdicts",
	Help: "AI classifier screening outcomes",
}, []string{"result"})

var notifyErrorCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "automod_notify_errors",
	Help: "Number of failed notifications",
})
