package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"log"
	"mime"
	"net/http"

	"collide2d/internal/broadphase"
	"collide2d/internal/fixture"
	"collide2d/internal/world"
)

// maxSceneBytes bounds reset uploads.
const maxSceneBytes = 8 << 20

// Handler methods for routerHandlers.
// Reads come from the published snapshot and never take the engine lock.

func (h *routerHandlers) snapshot(w http.ResponseWriter) (*world.Snapshot, bool) {
	snap := h.engine.Snapshot()
	if snap == nil {
		writeError(w, "World not ready", http.StatusServiceUnavailable)
		return nil, false
	}
	return snap, true
}

func (h *routerHandlers) handleGetState(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w)
	if !ok {
		return
	}
	writeJSON(w, snap)
}

func (h *routerHandlers) handleGetPairs(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w)
	if !ok {
		return
	}
	writeJSON(w, map[string]interface{}{
		"tick":   snap.Tick,
		"method": snap.Method,
		"count":  len(snap.Pairs),
		"pairs":  snap.Pairs,
	})
}

func (h *routerHandlers) handleGetStats(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w)
	if !ok {
		return
	}
	writeJSON(w, map[string]interface{}{
		"sequence": snap.Sequence,
		"tick":     snap.Tick,
		"tickRate": h.engine.TickRate(),
		"method":   snap.Method,
		"bodies":   len(snap.Bodies),
		"pairs":    len(snap.Pairs),
		"stats":    snap.Stats,
	})
}

func (h *routerHandlers) handleGetMethods(w http.ResponseWriter, r *http.Request) {
	current := ""
	if snap := h.engine.Snapshot(); snap != nil {
		current = snap.Method
	}
	writeJSON(w, map[string]interface{}{
		"current":   current,
		"available": broadphase.Kinds,
	})
}

func (h *routerHandlers) handleSnapshotPNG(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w)
	if !ok {
		return
	}
	// Render into a buffer so an encoder failure can still become a 500.
	var buf bytes.Buffer
	if err := h.renderer.WritePNG(&buf, snap); err != nil {
		log.Printf("⚠️ Snapshot render failed: %v", err)
		writeError(w, "Render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(buf.Bytes())
}

func (h *routerHandlers) handleAddBody(w http.ResponseWriter, r *http.Request) {
	var spec fixture.Spec
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&spec); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if err := spec.Validate(); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	id, err := h.engine.AddBody(fixture.Bodies([]fixture.Spec{spec})[0])
	if err != nil {
		writeEngineError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{"id": id})
}

func (h *routerHandlers) handleResetBodies(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, maxSceneBytes)

	var (
		specs []fixture.Spec
		err   error
	)
	if isMsgpack(r.Header.Get("Content-Type")) {
		specs, err = fixture.DecodeBinary(body)
	} else {
		specs, err = fixture.ParseText(body)
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, "Scene too large", http.StatusRequestEntityTooLarge)
			return
		}
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.engine.ResetBodies(fixture.Bodies(specs)); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{"bodies": len(specs)})
}

func (h *routerHandlers) handleSetMethod(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Method string `json:"method"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1024)).Decode(&req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	kind, err := h.engine.SetMethod(req.Method)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{"method": kind})
}

func isMsgpack(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	switch mt {
	case "application/msgpack", "application/x-msgpack", "application/vnd.msgpack":
		return true
	}
	return false
}

// writeEngineError maps engine sentinels to status codes.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, broadphase.ErrUnknownMethod), errors.Is(err, world.ErrBodyTooLarge):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, world.ErrBodyLimit):
		writeError(w, err.Error(), http.StatusConflict)
	default:
		log.Printf("⚠️ Engine error: %v", err)
		writeError(w, "Internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
