package roster

import (
	"encoding/json"
	"net/http"

	"github.com/rosterhub/rostersync/pkg/common/logger"
)

// sync POST /api/sync
// Triggers a full ingestion pass. On partial failure the per-collection
// report is still returned so operators can see which collections to retry;
// completed collections keep their new state. The external scheduler must
// guarantee at most one concurrent trigger.
func (h *Handler) sync(w http.ResponseWriter, r *http.Request) {
	report, err := h.syncer.Run(r.Context())
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		logger.Error("ingestion run %s failed: %v", report.RunID, err)
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":  "data ingestion failed",
			"report": report,
		})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"message": "Data ingestion successful!",
		"report":  report,
	})
}
