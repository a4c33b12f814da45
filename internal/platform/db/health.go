package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats is a snapshot of a connection pool.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
}

// HealthReport is the body of the database health endpoint.
type HealthReport struct {
	Status        string     `json:"status"`
	Error         string     `json:"error,omitempty"`
	Registry      *PoolStats `json:"registry"`
	TenantHandles int        `json:"tenant_handles"`
}

// GetPoolStats returns connection pool statistics.
func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
	}
}

type pinger interface {
	Ping(ctx context.Context) error
}

func report(ctx context.Context, p pinger, stats *PoolStats, handles int) (int, HealthReport) {
	r := HealthReport{Status: "healthy", Registry: stats, TenantHandles: handles}
	if err := p.Ping(ctx); err != nil {
		r.Status = "unhealthy"
		r.Error = err.Error()
		return http.StatusServiceUnavailable, r
	}
	return http.StatusOK, r
}

// HealthHandler pings the registry database and reports pool statistics
// along with the number of cached tenant handles.
func HealthHandler(pool *pgxpool.Pool, cache *PartitionCache) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		handles := 0
		if cache != nil {
			handles = cache.Len()
		}
		code, body := report(ctx, pool, GetPoolStats(pool), handles)
		return c.JSON(code, body)
	}
}
