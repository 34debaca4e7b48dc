package handler

import (
	"encoding/json"
	"net/http"

	"github.com/threattrace/threattrace/internal/database"
	"github.com/threattrace/threattrace/internal/logger"
	"github.com/threattrace/threattrace/internal/repository"
	"github.com/threattrace/threattrace/internal/service"
)

// Handler holds all HTTP handlers
type Handler struct {
	db        *database.Postgres
	rdb       *database.Redis
	log       *logger.Logger
	auditSvc  *service.AuditService
	alertSvc  *service.AlertService
	blockRepo *repository.BlockedIPRepository
	userRepo  *repository.UserRepository
	alertRepo *repository.AlertRepository
}

// New creates a new Handler instance
func New(
	db *database.Postgres,
	rdb *database.Redis,
	log *logger.Logger,
	auditSvc *service.AuditService,
	alertSvc *service.AlertService,
	blockRepo *repository.BlockedIPRepository,
	userRepo *repository.UserRepository,
	alertRepo *repository.AlertRepository,
) *Handler {
	return &Handler{
		db:        db,
		rdb:       rdb,
		log:       log,
		auditSvc:  auditSvc,
		alertSvc:  alertSvc,
		blockRepo: blockRepo,
		userRepo:  userRepo,
		alertRepo: alertRepo,
	}
}

// --- Response helpers ---

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
	})
}
