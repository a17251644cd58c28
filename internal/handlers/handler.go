package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"bank-reconciliation-backend/internal/apperr"
	"bank-reconciliation-backend/internal/logger"
	"bank-reconciliation-backend/internal/services/importer"
	"bank-reconciliation-backend/internal/services/matching"
	service "bank-reconciliation-backend/internal/services/reconciliation"
)

// ActorHeader names the request header carrying the acting user.
const ActorHeader = "X-Actor"

type ReconciliationHandler struct {
	importer *importer.Service
	engine   *matching.Engine
	service  *service.Service
	log      logrus.FieldLogger
}

func NewReconciliationHandler(imp *importer.Service, engine *matching.Engine, s *service.Service, log logrus.FieldLogger) *ReconciliationHandler {
	return &ReconciliationHandler{
		importer: imp,
		engine:   engine,
		service:  s,
		log:      logger.Component(log, "http"),
	}
}

func actor(c *gin.Context) string {
	if a := strings.TrimSpace(c.GetHeader(ActorHeader)); a != "" {
		return a
	}
	return "anonymous"
}

// uuidParam parses a path parameter and writes a 400 when it is malformed.
func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name, "code": apperr.CodeInvalidInput})
		return uuid.Nil, false
	}
	return id, true
}

var dateLayouts = []string{"2006-01-02", "02-01-2006", time.RFC3339}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func (h *ReconciliationHandler) fail(c *gin.Context, err error) {
	ae, ok := apperr.As(err)
	if !ok {
		ae = apperr.Wrap(err, apperr.KindInternal, apperr.CodeStore, "internal error")
	}
	status := ae.HTTPStatus()
	entry := h.log.WithFields(logrus.Fields{
		"method": c.Request.Method,
		"path":   c.FullPath(),
		"code":   ae.Code,
	})
	if status >= http.StatusInternalServerError {
		entry.WithError(err).Error("request failed")
		c.JSON(status, gin.H{"error": ae.Message, "code": ae.Code})
		return
	}
	entry.Debug(ae.Message)
	body := gin.H{"error": ae.Message, "code": ae.Code}
	if len(ae.Context) > 0 {
		body["context"] = ae.Context
	}
	c.JSON(status, body)
}
