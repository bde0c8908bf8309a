package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

const (
	StatusConnected    = "connected"
	StatusDisconnected = "disconnected"
	StatusDisabled     = "disabled"
)

type Status struct {
	NATS     string `json:"nats"`
	Redis    string `json:"redis"`
	Database string `json:"database"`
}

func (s *Status) Healthy() bool {
	return s.NATS != StatusDisconnected && s.Redis != StatusDisconnected && s.Database != StatusDisconnected
}

// Checker pings the backends relay was configured with. Nil backends report
// as disabled.
type Checker struct {
	nc          *nats.Conn
	redisClient *redis.Client
	db          *pgxpool.Pool
}

func NewChecker(nc *nats.Conn, redisClient *redis.Client, db *pgxpool.Pool) *Checker {
	return &Checker{
		nc:          nc,
		redisClient: redisClient,
		db:          db,
	}
}

func (h *Checker) Check(ctx context.Context) *Status {
	status := &Status{NATS: StatusDisabled, Redis: StatusDisabled, Database: StatusDisabled}

	if h.nc != nil {
		status.NATS = StatusDisconnected
		if h.nc.IsConnected() {
			status.NATS = StatusConnected
		}
	}

	if h.redisClient != nil {
		redisCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		status.Redis = StatusDisconnected
		if err := h.redisClient.Ping(redisCtx).Err(); err == nil {
			status.Redis = StatusConnected
		}
	}

	if h.db != nil {
		dbCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		status.Database = StatusDisconnected
		if err := h.db.Ping(dbCtx); err == nil {
			status.Database = StatusConnected
		}
	}

	return status
}

func (h *Checker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := h.Check(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if status.Healthy() {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(status)
}
