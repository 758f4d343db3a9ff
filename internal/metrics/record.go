package metrics

import "time"

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordCacheHit records a cache hit
func RecordCacheHit(cacheName string) {
	Get().CacheHitsTotal.WithLabelValues(cacheName).Inc()
}

// RecordCacheMiss records a cache miss
func RecordCacheMiss(cacheName string) {
	Get().CacheMissesTotal.WithLabelValues(cacheName).Inc()
}

func RecordCacheOperation(operation, cacheName string, duration time.Duration) {
	m := Get()
	m.CacheOperationsTotal.WithLabelValues(operation, cacheName).Inc()
	m.CacheOperationDuration.WithLabelValues(operation, cacheName).Observe(duration.Seconds())
}

// RecordRateLimitExceeded records a rejected request
func RecordRateLimitExceeded(endpoint, method string) {
	Get().RateLimitExceededTotal.WithLabelValues(endpoint, method).Inc()
}

// RecordDocstoreOperation records one document store call
func RecordDocstoreOperation(operation, collection string, duration time.Duration, err error) {
	m := Get()
	m.DocstoreOperationDuration.WithLabelValues(operation, collection).Observe(duration.Seconds())
	m.DocstoreOperationsTotal.WithLabelValues(operation, collection, status(err)).Inc()
}

func RecordRedisOperation(operation, keyPattern string, duration time.Duration, err error) {
	m := Get()
	m.RedisOperationDuration.WithLabelValues(operation, keyPattern).Observe(duration.Seconds())
	m.RedisOperationsTotal.WithLabelValues(operation, status(err)).Inc()
}

// RecordTMDBRequest records one catalog API call
func RecordTMDBRequest(endpoint string, duration time.Duration, err error) {
	m := Get()
	m.TMDBRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
	m.TMDBRequestsTotal.WithLabelValues(endpoint, status(err)).Inc()
}

// RecordSearchOperation records one call to the user search index
func RecordSearchOperation(operation string, duration time.Duration, err error) {
	m := Get()
	m.SearchOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	m.SearchOperationsTotal.WithLabelValues(operation, status(err)).Inc()
}

func SetTMDBBreakerState(name string, state int) {
	Get().TMDBBreakerState.WithLabelValues(name).Set(float64(state))
}

// RecordFeedPage records the latency and size of one feed page
func RecordFeedPage(feedType string, duration time.Duration, items int) {
	m := Get()
	m.FeedGenerationTime.WithLabelValues(feedType).Observe(duration.Seconds())
	m.FeedPageSize.WithLabelValues(feedType).Observe(float64(items))
}

// RecordError records errors by type
func RecordError(errorType, endpoint string) {
	Get().ErrorsTotal.WithLabelValues(errorType, endpoint).Inc()
}

// RecordAward records committed experience points and badge unlocks
func RecordAward(reason string, points int64, badges []string, duplicate bool) {
	m := Get()
	if duplicate {
		m.AwardDuplicates.WithLabelValues(reason).Inc()
		return
	}
	m.XPAwardedTotal.WithLabelValues(reason).Add(float64(points))
	for _, b := range badges {
		m.BadgesUnlockedTotal.WithLabelValues(b).Inc()
	}
}

// RecordTrigger records one processed change event
func RecordTrigger(collection, kind string, duration time.Duration, err error) {
	m := Get()
	m.TriggerEventsTotal.WithLabelValues(collection, kind, status(err)).Inc()
	m.TriggerDuration.WithLabelValues(collection).Observe(duration.Seconds())
}

func RecordFollow(follow bool) {
	if follow {
		Get().FollowsTotal.WithLabelValues().Inc()
		return
	}
	Get().UnfollowsTotal.WithLabelValues().Inc()
}

// RecordReaction records a reaction toggle; action is added, removed or switched
func RecordReaction(action string) {
	Get().ReactionsTotal.WithLabelValues(action).Inc()
}

func RecordComment(target string) {
	Get().CommentsTotal.WithLabelValues(target).Inc()
}

func RecordReviewCreated(mediaType string) {
	if mediaType == "" {
		mediaType = "unknown"
	}
	Get().ReviewsCreated.WithLabelValues(mediaType).Inc()
}

func RecordMessage(messageType string) {
	Get().MessagesSent.WithLabelValues(messageType).Inc()
}

func RecordBattleVote(side string) {
	Get().BattleVotesTotal.WithLabelValues(side).Inc()
}

// RecordNotification records a written notification and whether a push was sent
func RecordNotification(notificationType string, pushed bool) {
	push := "false"
	if pushed {
		push = "true"
	}
	Get().NotificationsTotal.WithLabelValues(notificationType, push).Inc()
}

// AddActiveSubscriptions moves the live subscription gauge by delta
func AddActiveSubscriptions(kind string, delta int) {
	Get().ActiveSubscriptions.WithLabelValues(kind).Add(float64(delta))
}

func RecordValidationFailure(field, reason string) {
	Get().ValidationFailures.WithLabelValues(field, reason).Inc()
}
