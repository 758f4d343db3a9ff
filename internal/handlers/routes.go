package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cinesync/backend/internal/cache"
	"github.com/cinesync/backend/internal/middleware"
)

// RegisterRoutes mounts the API on r. authenticate guards everything under
// /api/v1 except the websocket, which authenticates its own upgrade. rc may
// be nil, in which case rate limits are kept per process.
func (h *Handlers) RegisterRoutes(r *gin.Engine, authenticate gin.HandlerFunc, rc *cache.RedisClient) {
	r.GET("/health", h.Health(rc))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	internal := r.Group("/internal")
	{
		internal.POST("/triggers/firestore", h.HandleFirestoreTrigger)
	}

	api := r.Group("/api/v1")

	if h.wsHandler != nil {
		// auth via ?token= or the Authorization header
		api.GET("/ws", h.wsHandler.HandleWebSocket)
	}

	authed := api.Group("")
	authed.Use(authenticate, middleware.RedisRateLimit(rc, "api", middleware.DefaultRateLimitConfig()))

	// Creating the profile is the only call a user without one may make
	authed.POST("/profile", h.CreateProfile)
	authed.GET("/profile/username", h.CheckUsername)

	uploads := middleware.RedisRateLimit(rc, "uploads", middleware.UploadRateLimitConfig())

	p := authed.Group("")
	p.Use(middleware.RequireProfile())
	{
		profile := p.Group("/profile")
		{
			profile.GET("", h.GetMyProfile)
			profile.PATCH("", h.UpdateMyProfile)
			profile.PUT("/push-token", h.RegisterPushToken)
			profile.POST("/avatar", uploads, h.UploadAvatar)
			profile.POST("/cover", uploads, h.UploadCover)
		}
		p.POST("/uploads/club", uploads, h.UploadClubImage)

		feed := p.Group("/feed")
		{
			feed.GET("", h.GetFeed)
			feed.POST("/reset", h.ResetFeed)
		}

		users := p.Group("/users")
		{
			users.GET("/search", middleware.RedisRateLimit(rc, "search", middleware.SearchRateLimitConfig()), h.SearchUsers)
			users.GET("/:id", h.GetUserProfile)
			users.GET("/:id/badges", h.GetUserBadges)
			users.GET("/:id/reviews", h.GetUserReviews)
			users.GET("/:id/lists", h.GetUserLists)
			users.GET("/:id/followers", h.GetFollowers)
			users.GET("/:id/following", h.GetFollowing)
			users.POST("/:id/follow", h.ToggleFollow)
		}

		reviews := p.Group("/reviews")
		{
			reviews.POST("", h.CreateReview)
			reviews.GET("/:id", h.GetReview)
			reviews.DELETE("/:id", h.DeleteReview)
			reviews.POST("/:id/reactions", h.ToggleReaction)
			reviews.GET("/:id/comments", h.GetComments)
			reviews.POST("/:id/comments", h.CreateComment)
			reviews.POST("/:id/comments/reconcile", h.ReconcileComments)
			reviews.DELETE("/:id/comments/:commentId", h.DeleteComment)
		}
		p.GET("/titles/:id/reviews", h.GetTitleReviews)

		lists := p.Group("/lists")
		{
			lists.POST("", h.CreateList)
			lists.GET("/:id", h.GetList)
			lists.PATCH("/:id", h.UpdateList)
			lists.DELETE("/:id", h.DeleteList)
			lists.POST("/:id/items", h.AddListItem)
			lists.DELETE("/:id/items/:mediaType/:mediaId", h.RemoveListItem)
		}

		conversations := p.Group("/conversations")
		{
			conversations.GET("", h.GetConversations)
			conversations.POST("", h.OpenConversation)
			conversations.DELETE("/:id", h.DeleteConversation)
			conversations.POST("/:id/clear", h.ClearHistory)
			conversations.POST("/:id/read", h.MarkConversationRead)
			conversations.GET("/:id/messages", h.GetMessages)
			conversations.POST("/:id/messages", h.SendMessage)
			conversations.PATCH("/:id/messages/:messageId", h.EditMessage)
			conversations.DELETE("/:id/messages/:messageId", h.DeleteMessage)
			conversations.POST("/:id/messages/:messageId/accept", h.AcceptInvite)
		}

		clubs := p.Group("/clubs")
		{
			clubs.GET("", h.GetClubs)
			clubs.GET("/mine", h.GetMyClubs)
			clubs.POST("", h.CreateClub)
			clubs.GET("/:id", h.GetClub)
			clubs.POST("/:id/members", h.JoinClub)
			clubs.DELETE("/:id/members", h.LeaveClub)
			clubs.GET("/:id/posts", h.GetClubPosts)
			clubs.POST("/:id/posts", h.CreateClubPost)
			clubs.DELETE("/:id/posts/:postId", h.DeleteClubPost)
			clubs.POST("/:id/posts/:postId/like", h.LikeClubPost)
			clubs.GET("/:id/posts/:postId/comments", h.GetClubPostComments)
			clubs.POST("/:id/posts/:postId/comments", h.CreateClubPostComment)
			clubs.DELETE("/:id/posts/:postId/comments/:commentId", h.DeleteClubPostComment)
		}

		battles := p.Group("/battles")
		{
			battles.GET("/:id", h.GetBattle)
			battles.POST("/:id/vote", h.VoteBattle)
		}

		notifications := p.Group("/notifications")
		{
			notifications.GET("", h.GetNotifications)
			notifications.GET("/unread", h.GetUnreadCount)
			notifications.POST("/read", h.MarkAllNotificationsRead)
			notifications.POST("/:id/read", h.MarkNotificationRead)
		}

		if h.Catalog != nil {
			catalog := p.Group("/catalog")
			catalog.Use(middleware.RedisRateLimit(rc, "catalog", middleware.SearchRateLimitConfig()))
			{
				catalog.GET("/search", h.SearchCatalog)
				catalog.GET("/discover/:mediaType", h.DiscoverCatalog)
				catalog.GET("/genres/:mediaType", h.GetGenres)
				catalog.GET("/titles/:mediaType/:id", h.GetTitle)
				catalog.GET("/titles/:mediaType/:id/credits", h.GetTitleCredits)
				catalog.GET("/titles/:mediaType/:id/images", h.GetTitleImages)
			}
		}

		if h.wsHandler != nil {
			ws := p.Group("/ws")
			{
				ws.GET("/metrics", h.wsHandler.HandleMetrics)
				ws.POST("/online", h.wsHandler.HandleOnlineStatus)
			}
		}
	}
}
