package handler

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"tidepool-web/internal/audit"
)

// Health returns basic health check
func Health(w http.ResponseWriter, r *http.Request) {
	JSON(http.StatusOK, map[string]string{"status": "ok"}).Write(w)
}

// HealthCheckResult represents the result of a health check
type HealthCheckResult struct {
	Status    string                 `json:"status"`
	LatencyMs int64                  `json:"latency_ms,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// Pinger reports reachability of a backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ready returns readiness check with dependencies. A nil broker or cache
// is reported as skipped and does not fail readiness; deployments without
// them stay schedulable.
func Ready(db *sql.DB, broker *audit.AMQPRecorder, cache Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		// Check dependencies in parallel
		dbResult := make(chan HealthCheckResult, 1)
		brokerResult := make(chan HealthCheckResult, 1)
		cacheResult := make(chan HealthCheckResult, 1)

		go func() {
			dbResult <- checkDatabase(ctx, db)
		}()

		go func() {
			brokerResult <- checkBroker(broker)
		}()

		go func() {
			cacheResult <- checkCache(ctx, cache)
		}()

		dbCheck := <-dbResult
		brokerCheck := <-brokerResult
		cacheCheck := <-cacheResult

		response := map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"checks": map[string]HealthCheckResult{
				"database": dbCheck,
				"broker":   brokerCheck,
				"cache":    cacheCheck,
			},
		}

		allHealthy := dbCheck.Status != "down" && brokerCheck.Status != "down" && cacheCheck.Status != "down"

		if allHealthy {
			response["status"] = "ready"
			JSON(http.StatusOK, response).Write(w)
		} else {
			response["status"] = "not_ready"
			JSON(http.StatusServiceUnavailable, response).Write(w)
		}
	}
}

// checkDatabase verifies database connectivity
func checkDatabase(ctx context.Context, db *sql.DB) HealthCheckResult {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	stats := db.Stats()

	if err != nil {
		return HealthCheckResult{
			Status:    "down",
			LatencyMs: latency.Milliseconds(),
			Error:     err.Error(),
		}
	}

	return HealthCheckResult{
		Status:    "up",
		LatencyMs: latency.Milliseconds(),
		Metadata: map[string]interface{}{
			"connections_open":   stats.OpenConnections,
			"connections_in_use": stats.InUse,
			"connections_idle":   stats.Idle,
			"max_open":           stats.MaxOpenConnections,
		},
	}
}

// checkBroker verifies broker connectivity
func checkBroker(broker *audit.AMQPRecorder) HealthCheckResult {
	if broker == nil {
		return HealthCheckResult{Status: "skipped"}
	}

	if broker.IsClosed() {
		return HealthCheckResult{
			Status: "down",
			Error:  "connection closed",
		}
	}

	return HealthCheckResult{Status: "up"}
}

// checkCache verifies cache connectivity
func checkCache(ctx context.Context, cache Pinger) HealthCheckResult {
	if cache == nil {
		return HealthCheckResult{Status: "skipped"}
	}

	start := time.Now()
	err := cache.Ping(ctx)
	latency := time.Since(start)

	if err != nil {
		return HealthCheckResult{
			Status:    "down",
			LatencyMs: latency.Milliseconds(),
			Error:     err.Error(),
		}
	}

	return HealthCheckResult{
		Status:    "up",
		LatencyMs: latency.Milliseconds(),
	}
}
