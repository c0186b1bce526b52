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
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
	Healthy         bool   `json:"healthy"`
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
		Healthy:         stat.TotalConns() > 0,
	}
}

// Check is one dependency checked by the health endpoint.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// HealthHandler reports pool statistics and the result of each check. The
// pool itself is always checked first as "postgres".
func HealthHandler(pool *pgxpool.Pool, extra ...Check) echo.HandlerFunc {
	checks := append([]Check{{Name: "postgres", Ping: pool.Ping}}, extra...)
	return healthHandler(checks, func() any { return GetPoolStats(pool) })
}

// CheckHandler is HealthHandler without a database pool, for the in-memory
// store.
func CheckHandler(checks ...Check) echo.HandlerFunc {
	return healthHandler(checks, nil)
}

func healthHandler(checks []Check, stats func() any) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for _, chk := range checks {
			if err := chk.Ping(ctx); err != nil {
				status = http.StatusServiceUnavailable
				results[chk.Name] = err.Error()
				continue
			}
			results[chk.Name] = "ok"
		}

		body := map[string]interface{}{"checks": results}
		if status == http.StatusOK {
			body["status"] = "healthy"
		} else {
			body["status"] = "unhealthy"
		}
		if stats != nil {
			body["pool"] = stats()
		}
		return c.JSON(status, body)
	}
}
