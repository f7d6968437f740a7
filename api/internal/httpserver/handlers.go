package httpserver

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"reality-quest/api/internal/location"
	"reality-quest/api/internal/quest"
)

func playerID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(PlayerHeader)); id != "" {
		return id
	}
	return DefaultPlayerID
}

func (h *Handler) player(w http.ResponseWriter, r *http.Request) (*quest.Orchestrator, bool) {
	o, err := h.Players.Player(r.Context(), playerID(r), false)
	if err != nil {
		h.Log.Error("load player", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not load player")
		return nil, false
	}
	return o, true
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if h.Ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "store": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) state(w http.ResponseWriter, r *http.Request) {
	o, ok := h.player(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, o.Snapshot())
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	o, ok := h.player(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, o.Snapshot().History)
}

// rounds: журнал раундов с отладочной нагрузкой, ?limit=N (по умолчанию 10).
func (h *Handler) rounds(w http.ResponseWriter, r *http.Request) {
	o, ok := h.player(w, r)
	if !ok {
		return
	}
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 100 {
			writeError(w, http.StatusBadRequest, "limit must be 1..100")
			return
		}
		limit = n
	}
	rows, err := o.Rounds(r.Context(), limit)
	if err != nil {
		h.Log.Error("load rounds", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not load rounds")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *Handler) newChallenge(w http.ResponseWriter, r *http.Request) {
	o, ok := h.player(w, r)
	if !ok {
		return
	}
	ch, err := o.NewChallenge()
	if err != nil {
		h.writeQuestError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

func (h *Handler) customChallenge(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	o, ok := h.player(w, r)
	if !ok {
		return
	}
	ch, err := o.SetCustomChallenge(r.Context(), req.Text)
	if err != nil {
		h.writeQuestError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

func (h *Handler) reset(w http.ResponseWriter, r *http.Request) {
	o, ok := h.player(w, r)
	if !ok {
		return
	}
	if err := o.Reset(r.Context()); err != nil {
		h.writeQuestError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o.Snapshot())
}

// verify: multipart с полем clip и необязательными lat/lng/accuracy.
func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxClipBytes)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "expected multipart form with a clip")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, hdr, err := r.FormFile("clip")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing clip file")
		return
	}
	defer file.Close()

	var loc location.Provider
	if pos, ok, err := parsePosition(r); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	} else if ok {
		fixed := location.NewFixed()
		fixed.Set(pos)
		loc = fixed
	}

	o, ok := h.player(w, r)
	if !ok {
		return
	}

	path, err := spool(file, filepath.Ext(hdr.Filename))
	if err != nil {
		h.Log.Error("spool clip", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not store clip")
		return
	}
	defer os.Remove(path)

	out, err := o.Verify(r.Context(), quest.RoundOptions{Device: h.ClipDevice(path), Location: loc})
	if err != nil {
		h.writeQuestError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) writeQuestError(w http.ResponseWriter, err error) {
	var pe *quest.PhaseError
	switch {
	case errors.Is(err, quest.ErrBusy):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, quest.ErrInvalidCustomChallenge):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &pe):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": pe.Err.Error(), "phase": string(pe.Phase)})
	default:
		h.Log.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

var errBadPosition = errors.New("lat and lng must both be numbers")

func parsePosition(r *http.Request) (location.Position, bool, error) {
	latS, lngS := r.FormValue("lat"), r.FormValue("lng")
	if latS == "" && lngS == "" {
		return location.Position{}, false, nil
	}
	lat, err1 := strconv.ParseFloat(latS, 64)
	lng, err2 := strconv.ParseFloat(lngS, 64)
	if err1 != nil || err2 != nil {
		return location.Position{}, false, errBadPosition
	}
	pos := location.Position{Latitude: lat, Longitude: lng}
	if acc := r.FormValue("accuracy"); acc != "" {
		if pos.Accuracy, err1 = strconv.ParseFloat(acc, 64); err1 != nil {
			return location.Position{}, false, errors.New("accuracy must be a number")
		}
	}
	return pos, true, nil
}

func spool(src io.Reader, ext string) (string, error) {
	f, err := os.CreateTemp("", "reality-quest-clip-*"+ext)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(f, src); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
