package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats represents database connection pool statistics.
type PoolStats struct {
	Driver          string `json:"driver"`
	OpenConns       int    `json:"open_conns"`
	InUseConns      int    `json:"in_use_conns"`
	IdleConns       int    `json:"idle_conns"`
	MaxConns        int    `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count,omitempty"`
	AcquireDuration string `json:"acquire_duration,omitempty"`
	Healthy         bool   `json:"healthy"`
}

// GetPoolStats returns connection statistics for the store. Postgres stores
// report the pgx pool counters, which are more precise than database/sql's.
func GetPoolStats(s *Store) *PoolStats {
	if s.Pool != nil {
		return pgxPoolStats(s.Pool)
	}
	stat := s.DB.Stats()
	return &PoolStats{
		Driver:     s.Dialect.String(),
		OpenConns:  stat.OpenConnections,
		InUseConns: stat.InUse,
		IdleConns:  stat.Idle,
		MaxConns:   stat.MaxOpenConnections,
		Healthy:    stat.OpenConnections > 0,
	}
}

func pgxPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		Driver:          Postgres.String(),
		OpenConns:       int(stat.TotalConns()),
		InUseConns:      int(stat.AcquiredConns()),
		IdleConns:       int(stat.IdleConns()),
		MaxConns:        int(stat.MaxConns()),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
		Healthy:         stat.TotalConns() > 0,
	}
}

// HealthHandler returns a handler for the database health check endpoint.
func HealthHandler(s *Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		err := s.DB.PingContext(ctx)
		stats := GetPoolStats(s)

		if err != nil {
			stats.Healthy = false
			return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
				"status": "unhealthy",
				"error":  err.Error(),
				"pool":   stats,
			})
		}

		return c.JSON(http.StatusOK, map[string]interface{}{
			"status": "healthy",
			"pool":   stats,
		})
	}
}
