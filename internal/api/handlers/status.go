package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/amaumene/announcarr/internal/models"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// statsTTL bounds how often /status counts every bucket
const statsTTL = 5 * time.Second

const statsKey = "stats"

// QueueDepth reports the number of items waiting for the consumer
type QueueDepth func() int

// StatusHandler handles status requests
type StatusHandler struct {
	db     *models.Database
	depth  QueueDepth
	cache  *cache.Cache
	logger *logrus.Logger
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(db *models.Database, depth QueueDepth, logger *logrus.Logger) *StatusHandler {
	return &StatusHandler{
		db:     db,
		depth:  depth,
		cache:  cache.New(statsTTL, time.Minute),
		logger: logger,
	}
}

// StatusResponse represents the status response
type StatusResponse struct {
	*models.Stats
	QueueDepth int `json:"queue_depth"`
}

// ServeHTTP handles the status endpoint
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats, err := h.stats()
	if err != nil {
		h.logger.WithError(err).Error("Failed to get stats")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	response := StatusResponse{Stats: stats}
	if h.depth != nil {
		response.QueueDepth = h.depth()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func (h *StatusHandler) stats() (*models.Stats, error) {
	if cached, ok := h.cache.Get(statsKey); ok {
		return cached.(*models.Stats), nil
	}
	stats, err := h.db.GetStats()
	if err != nil {
		return nil, err
	}
	h.cache.SetDefault(statsKey, stats)
	return stats, nil
}
