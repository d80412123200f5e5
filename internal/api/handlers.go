package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/cmorgan83/trade-history-service/internal/database"
	"github.com/cmorgan83/trade-history-service/internal/ingest"
	"github.com/cmorgan83/trade-history-service/internal/kafka"
	"github.com/cmorgan83/trade-history-service/internal/metrics"
	"github.com/cmorgan83/trade-history-service/internal/models"
	"github.com/cmorgan83/trade-history-service/internal/redis"
)

// Store defines the database operations the API surfaces
type Store interface {
	Ping() error
	RebuildDerived(transferWindowDays int) (*models.RebuildReport, error)
	ListPositions() ([]*models.PositionRow, error)
	ListLotClosures(accountID, symbol string, limit, offset int) ([]*models.LotClosure, error)
	RealizedSummary(accountID string) ([]*models.RealizedSummary, error)
	ListTransfers() ([]*models.TransferLink, error)
	ListEvents(filter database.EventFilter) ([]*models.Event, error)
}

// Ingestor defines the statement ingestion operation the API surfaces
type Ingestor interface {
	IngestBatches(batches []models.StatementBatch) (*ingest.Result, error)
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	store              Store
	ingestor           Ingestor
	producer           *kafka.Producer
	redis              *redis.Client
	transferWindowDays int
}

// NewHandler creates a new Handler
func NewHandler(store Store, ingestor Ingestor, producer *kafka.Producer, redisClient *redis.Client, transferWindowDays int) *Handler {
	return &Handler{
		store:              store,
		ingestor:           ingestor,
		producer:           producer,
		redis:              redisClient,
		transferWindowDays: transferWindowDays,
	}
}

// Rebuild handles POST /api/v1/rebuild. The rebuild is idempotent and
// takes no parameters; the response is the structured report.
func (h *Handler) Rebuild(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	report, err := h.store.RebuildDerived(h.transferWindowDays)
	if err != nil {
		metrics.RebuildsTotal.WithLabelValues("failed").Inc()
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	metrics.RebuildsTotal.WithLabelValues("success").Inc()
	metrics.RebuildDuration.Observe(time.Since(start).Seconds())
	metrics.RebuildEventsProcessed.Set(float64(report.ProcessedEvents))
	metrics.RebuildLotsClosed.Set(float64(report.ClosedLotRows))

	h.afterRebuild(r.Context(), report)
	respondJSON(w, http.StatusOK, report)
}

// IngestStatements handles POST /api/v1/ingest/statements: a list of
// normalized statement batches from the extraction pipeline
func (h *Handler) IngestStatements(w http.ResponseWriter, r *http.Request) {
	var batches []models.StatementBatch
	if err := json.NewDecoder(r.Body).Decode(&batches); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(batches) == 0 {
		http.Error(w, "at least one statement batch is required", http.StatusBadRequest)
		return
	}
	for _, batch := range batches {
		if batch.FilePath == "" {
			http.Error(w, "statement batch is missing file_path", http.StatusBadRequest)
			return
		}
	}

	result, err := h.ingestor.IngestBatches(batches)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.afterRebuild(r.Context(), result.Positions)
	respondJSON(w, http.StatusOK, result)
}

// afterRebuild invalidates the positions cache and announces the rebuild
func (h *Handler) afterRebuild(ctx context.Context, report *models.RebuildReport) {
	if h.redis != nil {
		if err := h.redis.InvalidatePositions(ctx); err != nil {
			log.Printf("Failed to invalidate positions cache: %v", err)
		}
	}
	if h.producer != nil && report != nil {
		if err := h.producer.PublishRebuildCompleted(ctx, report); err != nil {
			log.Printf("Failed to publish rebuild event: %v", err)
		}
	}
}

// GetPositions handles GET /api/v1/positions
func (h *Handler) GetPositions(w http.ResponseWriter, r *http.Request) {
	if h.redis != nil {
		if cached, ok, err := h.redis.GetOpenPositions(r.Context()); err == nil && ok {
			respondJSON(w, http.StatusOK, cached)
			return
		}
	}

	positions, err := h.store.ListPositions()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if h.redis != nil {
		if err := h.redis.SetOpenPositions(r.Context(), positions, redis.DefaultPositionsTTL); err != nil {
			log.Printf("Failed to cache positions: %v", err)
		}
	}
	respondJSON(w, http.StatusOK, positions)
}

// GetLotClosures handles GET /api/v1/lots
func (h *Handler) GetLotClosures(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	lots, err := h.store.ListLotClosures(q.Get("account_id"), q.Get("symbol"), limit, offset)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, lots)
}

// GetRealizedSummary handles GET /api/v1/lots/summary
func (h *Handler) GetRealizedSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.store.RealizedSummary(r.URL.Query().Get("account_id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

// GetTransfers handles GET /api/v1/transfers
func (h *Handler) GetTransfers(w http.ResponseWriter, r *http.Request) {
	transfers, err := h.store.ListTransfers()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, transfers)
}

// GetEvents handles GET /api/v1/events
func (h *Handler) GetEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	events, err := h.store.ListEvents(database.EventFilter{
		AccountID: q.Get("account_id"),
		Symbol:    q.Get("symbol"),
		EventType: q.Get("event_type"),
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, events)
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"services":  map[string]string{},
	}
	services := health["services"].(map[string]string)
	allHealthy := true

	// Check database
	if h.store != nil {
		if err := h.store.Ping(); err != nil {
			services["postgres"] = "unhealthy: " + err.Error()
			allHealthy = false
		} else {
			services["postgres"] = "healthy"
		}
	} else {
		services["postgres"] = "not configured"
		allHealthy = false
	}

	// Check Redis
	if h.redis != nil {
		if err := h.redis.Ping(ctx); err != nil {
			services["redis"] = "unhealthy: " + err.Error()
		} else {
			services["redis"] = "healthy"
		}
	} else {
		services["redis"] = "not configured"
	}

	// Check Kafka producer
	if h.producer != nil {
		services["kafka"] = "configured"
	} else {
		services["kafka"] = "not configured"
	}

	if !allHealthy {
		health["status"] = "degraded"
	}

	respondJSON(w, http.StatusOK, health)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
