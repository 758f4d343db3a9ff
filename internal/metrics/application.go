package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ApplicationMetrics tracks domain-specific metrics (gamification, social engagement, battles)
type ApplicationMetrics struct {
	// Gamification
	XPAwardedTotal      prometheus.CounterVec
	BadgesUnlockedTotal prometheus.CounterVec
	AwardDuplicates     prometheus.CounterVec

	// Trigger processing
	TriggerEventsTotal     prometheus.CounterVec
	TriggerDuration        prometheus.HistogramVec
	TriggerQueuePending    prometheus.GaugeVec
	TriggerQueueRejections prometheus.CounterVec

	// Social engagement
	FollowsTotal       prometheus.CounterVec
	UnfollowsTotal     prometheus.CounterVec
	ReactionsTotal     prometheus.CounterVec
	CommentsTotal      prometheus.CounterVec
	ReviewsCreated     prometheus.CounterVec
	MessagesSent       prometheus.CounterVec
	BattleVotesTotal   prometheus.CounterVec
	NotificationsTotal prometheus.CounterVec

	// Realtime
	ActiveSubscriptions prometheus.GaugeVec

	// Validation metrics
	ValidationFailures prometheus.CounterVec
}

// InitializeApplicationMetrics creates and registers all application metrics.
// Called once from Initialize.
func InitializeApplicationMetrics() *ApplicationMetrics {
	return &ApplicationMetrics{
		XPAwardedTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xp_awarded_total",
				Help: "Total experience points awarded",
			},
			[]string{"reason"},
		),
		BadgesUnlockedTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "badges_unlocked_total",
				Help: "Total badges unlocked",
			},
			[]string{"badge"},
		),
		AwardDuplicates: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "award_duplicates_total",
				Help: "Award events skipped because they were already processed",
			},
			[]string{"reason"},
		),

		TriggerEventsTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trigger_events_total",
				Help: "Total change events processed by triggers",
			},
			[]string{"collection", "kind", "status"},
		),
		TriggerDuration: *promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "trigger_duration_seconds",
				Help:    "Trigger processing duration in seconds",
				Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
			},
			[]string{"collection"},
		),
		TriggerQueuePending: *promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "trigger_queue_pending_events",
				Help: "Number of change events waiting for a trigger worker",
			},
			[]string{},
		),
		TriggerQueueRejections: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trigger_queue_rejections_total",
				Help: "Change events dropped because the trigger queue was full",
			},
			[]string{"collection"},
		),

		FollowsTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "follows_total",
				Help: "Total number of follows",
			},
			[]string{},
		),
		UnfollowsTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "unfollows_total",
				Help: "Total number of unfollows",
			},
			[]string{},
		),
		ReactionsTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reactions_total",
				Help: "Total number of review reaction toggles",
			},
			[]string{"action"},
		),
		CommentsTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "comments_total",
				Help: "Total number of comments",
			},
			[]string{"target"},
		),
		ReviewsCreated: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reviews_created_total",
				Help: "Total number of reviews created",
			},
			[]string{"media_type"},
		),
		MessagesSent: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "messages_sent_total",
				Help: "Total number of chat messages sent",
			},
			[]string{"type"},
		),
		BattleVotesTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "battle_votes_total",
				Help: "Total number of battle votes",
			},
			[]string{"side"},
		),
		NotificationsTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifications_total",
				Help: "Total notifications written",
			},
			[]string{"type", "push"},
		),

		ActiveSubscriptions: *promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "realtime_active_subscriptions",
				Help: "Number of live document and query subscriptions",
			},
			[]string{"kind"},
		),

		ValidationFailures: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "validation_failures_total",
				Help: "Total validation failures",
			},
			[]string{"field", "reason"},
		),
	}
}
