// Package backend provides the CineSync API server.

// The API server lives in cmd/server and the admin CLI in cmd/cli. The
// application code is organized into subpackages:

// - internal/docstore: document store (memory, gorm sql, Firestore) and change feed
// - internal/handlers: HTTP request handlers for all API endpoints
// - internal/feed: mixed home feed with cursors, dedup and battle cards
// - internal/social, reviews, lists, chat, clubs, battles: domain services
// - internal/gamification: XP and badge awards driven by store triggers
// - internal/queue: trigger worker pool
// - internal/websocket: WebSocket hub, presence and live views
// - internal/tmdb: movie metadata client
// - internal/search: Elasticsearch user index
// - internal/storage: image uploads to S3
// - internal/container: dependency wiring shared by the server and CLI
package backend
