package adminhttp

import (
	"encoding/json"
	"net/http"

	"arbengine/internal/models"
	"arbengine/internal/orchestrator"
)

// KillSwitch is the subset of *risk.Gate's kill-switch the admin surface
// needs; declared as an interface here so adminhttp never imports
// internal/risk's full Request/Config/Validate surface.
type KillSwitch interface {
	Halt()
	Resume()
	Halted() bool
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.Encode(v)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func statusHandler(gate KillSwitch) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"halted": gate.Halted()})
	}
}

func haltHandler(gate KillSwitch) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gate.Halt()
		writeJSON(w, http.StatusOK, map[string]bool{"halted": true})
	}
}

func resumeHandler(gate KillSwitch) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gate.Resume()
		writeJSON(w, http.StatusOK, map[string]bool{"halted": false})
	}
}

// shardSummary is the admin-facing view of one models.ShardRegistryEntry,
// dropping the internal maps down to counts so the endpoint stays cheap to
// render and doesn't leak event IDs an operator has no use for.
type shardSummary struct {
	ShardID        string             `json:"shard_id"`
	ShardType      models.ShardType   `json:"shard_type"`
	Status         models.ShardStatus `json:"status"`
	AssignedEvents int                `json:"assigned_events"`
	MaxGames       int                `json:"max_games"`
	LastHeartbeat  string             `json:"last_heartbeat"`
}

func shardsHandler(registry *orchestrator.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries := registry.All()
		out := make([]shardSummary, 0, len(entries))
		for id, entry := range entries {
			out = append(out, shardSummary{
				ShardID:        id,
				ShardType:      entry.ShardType,
				Status:         entry.Status,
				AssignedEvents: len(entry.AssignedEvents),
				MaxGames:       entry.MaxGames,
				LastHeartbeat:  entry.LastHeartbeat.Format("2006-01-02T15:04:05Z07:00"),
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func healthyShardsHandler(registry *orchestrator.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shardType := models.ShardType(r.URL.Query().Get("type"))
		if shardType == "" {
			shardType = models.ShardSports
		}
		writeJSON(w, http.StatusOK, registry.HealthyShards(shardType))
	}
}
