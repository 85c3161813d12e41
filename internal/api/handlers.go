package api

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mkalra/crossarb/internal/models"
	"github.com/mkalra/crossarb/internal/scanner"
)

const defaultListLimit = 50

type handlers struct {
	scanner Scanner
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) getSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.scanner.Preferences())
}

func (h *handlers) putSettings(w http.ResponseWriter, r *http.Request) {
	var u scanner.Update
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&u); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("malformed body: %v", err))
		return
	}
	prefs, err := h.scanner.ApplyUpdate(u)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

// opportunitiesResponse is the latest cycle with the row filters applied.
type opportunitiesResponse struct {
	Cycle         uint64               `json:"cycle"`
	TsDetected    time.Time            `json:"ts_detected"`
	Count         int                  `json:"count"`
	Opportunities []models.Opportunity `json:"opportunities"`
}

func (h *handlers) getOpportunities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	symbol := strings.ToUpper(strings.TrimSpace(q.Get("symbol")))
	var minEdge *decimal.Decimal
	if v := q.Get("min_edge"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("min_edge %q is not a number", v))
			return
		}
		minEdge = &d
	}
	limit := defaultListLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("limit %q must be a positive integer", v))
			return
		}
		limit = n
	}

	set, _ := h.scanner.Latest(r.Context())
	rows := filterRows(set.Opportunities, symbol, minEdge, limit)
	writeJSON(w, http.StatusOK, opportunitiesResponse{
		Cycle:         set.Cycle,
		TsDetected:    set.TsDetected,
		Count:         len(rows),
		Opportunities: rows,
	})
}

func (h *handlers) getStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.scanner.Status(r.Context()))
}

// filterRows keeps the set's net-edge ordering; it only narrows and caps.
func filterRows(rows []models.Opportunity, symbol string, minEdge *decimal.Decimal, limit int) []models.Opportunity {
	out := make([]models.Opportunity, 0, len(rows))
	for _, row := range rows {
		if symbol != "" && row.Symbol != symbol {
			continue
		}
		if minEdge != nil && row.NetEdgePct.LessThan(*minEdge) {
			continue
		}
		out = append(out, row)
		if len(out) == limit {
			break
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusRecorder captures the response code for the request log while
// keeping Hijacker support for websocket upgrades.
type statusRecorder struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if !s.wrote {
		s.status = code
		s.wrote = true
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	s.wrote = true
	return s.ResponseWriter.Write(b)
}

func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return h.Hijack()
}
