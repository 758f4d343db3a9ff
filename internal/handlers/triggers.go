package handlers

import (
	"crypto/subtle"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cinesync/backend/internal/docstore"
	apierrors "github.com/cinesync/backend/internal/errors"
	"github.com/cinesync/backend/internal/logger"
	"github.com/cinesync/backend/internal/metrics"
	"github.com/cinesync/backend/internal/queue"
	"github.com/cinesync/backend/internal/util"
)

const maxTriggerBody = 1 << 20

// HandleFirestoreTrigger accepts a document change event delivered by the
// hosted store (Eventarc, JSON encoded) and queues it for the trigger workers.
// POST /internal/triggers/firestore
func (h *Handlers) HandleFirestoreTrigger(c *gin.Context) {
	if h.triggers == nil {
		util.RespondWithAPIError(c, apierrors.ServiceUnavailable("triggers"))
		return
	}
	secret := c.GetHeader("X-Trigger-Secret")
	if h.triggerSecret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(h.triggerSecret)) != 1 {
		util.RespondWithAPIError(c, apierrors.Unauthorized("invalid trigger secret"))
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxTriggerBody))
	if err != nil {
		util.RespondBadRequest(c, "unreadable body")
		return
	}
	ev, err := docstore.DecodeFirestoreEvent(body)
	if err != nil {
		logger.Log.Warn("Rejected trigger event", zap.Error(err))
		util.RespondError(c, err)
		return
	}

	if err := h.triggers.Submit(ev); err != nil {
		// 503 makes the delivery service retry later
		if errors.Is(err, queue.ErrQueueFull) || errors.Is(err, queue.ErrQueueStopped) {
			metrics.RecordError("trigger_queue_full", "triggers")
			util.RespondWithAPIError(c, apierrors.ServiceUnavailable("trigger queue"))
			return
		}
		util.RespondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"path": ev.Ref.Path(), "kind": ev.Kind.String()})
}
