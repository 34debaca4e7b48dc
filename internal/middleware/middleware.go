package middleware

import (
	"context"
	"time"

	"github.com/threattrace/threattrace/internal/logger"
	"github.com/threattrace/threattrace/internal/model"
	"github.com/threattrace/threattrace/internal/service"
)

// BlockChecker answers whether an IP is under an active containment block
type BlockChecker interface {
	IsBlocked(ctx context.Context, ip string, now time.Time) (bool, error)
}

// UserLoader fetches users for auth checks
type UserLoader interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
}

// Recorder appends to the security audit trail
type Recorder interface {
	Record(ctx context.Context, in service.EventInput)
}

// Middleware holds all HTTP middleware
type Middleware struct {
	blocks BlockChecker
	users  UserLoader
	audit  Recorder
	log    *logger.Logger
}

// New creates a new Middleware instance
func New(blocks BlockChecker, users UserLoader, audit Recorder, log *logger.Logger) *Middleware {
	return &Middleware{
		blocks: blocks,
		users:  users,
		audit:  audit,
		log:    log,
	}
}
