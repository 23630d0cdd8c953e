package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/cache"
	"github.com/stemsi/exstem-cbt/internal/response"
	"github.com/stemsi/exstem-cbt/internal/service"
)

const (
	refreshInterval   = 15 * time.Second
	keepAliveInterval = 30 * time.Second
	refreshTimeout    = 5 * time.Second // prevent slow queries from blocking the SSE loop
)

// MonitorSubscriber opens a per-subject event feed. cache.RedisMonitor and
// cache.LocalMonitor implement it.
type MonitorSubscriber interface {
	Subscribe(ctx context.Context, subjectID int) (cache.Subscription, error)
}

type MonitorHandler struct {
	monitorService *service.MonitorService
	subscriber     MonitorSubscriber
	log            zerolog.Logger

	refreshEvery   time.Duration
	keepAliveEvery time.Duration
}

func NewMonitorHandler(monitorService *service.MonitorService, subscriber MonitorSubscriber, log zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		monitorService: monitorService,
		subscriber:     subscriber,
		log:            log.With().Str("component", "monitor_handler").Logger(),
		refreshEvery:   refreshInterval,
		keepAliveEvery: keepAliveInterval,
	}
}

type monitorMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// MonitorSubjectSSE godoc
// GET /api/v1/review/subjects/:subject_id/monitor
// Sends a snapshot, then forwards live session events for the subject.
func (h *MonitorHandler) MonitorSubjectSSE(c *gin.Context) {
	caller, ok := callerIdentity(c)
	if !ok {
		return
	}

	subjectID, err := strconv.Atoi(c.Param("subject_id"))
	if err != nil || subjectID <= 0 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	reqCtx := c.Request.Context()

	// Subscribe before the snapshot so nothing between the two is lost.
	sub, err := h.subscriber.Subscribe(reqCtx, subjectID)
	if err != nil {
		failFromService(c, h.log, err, response.ErrReviewerOnly)
		return
	}
	defer sub.Close()

	snapshot, err := h.monitorService.Snapshot(reqCtx, caller, subjectID)
	if err != nil {
		failFromService(c, h.log, err, response.ErrReviewerOnly)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	c.SSEvent("message", monitorMessage{Type: "snapshot", Data: snapshot})
	c.Writer.Flush()

	keepAliveTicker := time.NewTicker(h.keepAliveEvery)
	defer keepAliveTicker.Stop()

	refreshTicker := time.NewTicker(h.refreshEvery)
	defer refreshTicker.Stop()

	h.log.Info().Int("subject_id", subjectID).Int("reviewer_id", caller.UserID).Msg("Reviewer attached to live monitor SSE")

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Int("subject_id", subjectID).Msg("Reviewer disconnected from live monitor SSE")
			return

		case payload, open := <-sub.Events():
			if !open {
				return
			}
			// Forward the published JSON as is.
			c.SSEvent("message", json.RawMessage(payload))
			c.Writer.Flush()

		case <-refreshTicker.C:
			h.sendRefresh(c, reqCtx, caller, subjectID)

		case <-keepAliveTicker.C:
			c.SSEvent("message", monitorMessage{Type: "ping"})
			c.Writer.Flush()
		}
	}
}

// sendRefresh re-sends the snapshot so remaining times stay current.
func (h *MonitorHandler) sendRefresh(c *gin.Context, parentCtx context.Context, caller service.Identity, subjectID int) {
	ctx, cancel := context.WithTimeout(parentCtx, refreshTimeout)
	defer cancel()

	snapshot, err := h.monitorService.Snapshot(ctx, caller, subjectID)
	if err != nil {
		h.log.Warn().Err(err).Int("subject_id", subjectID).Msg("Failed to refresh monitor snapshot")
		return
	}
	c.SSEvent("message", monitorMessage{Type: "refresh", Data: snapshot})
	c.Writer.Flush()
}
