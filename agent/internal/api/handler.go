package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/common/expfmt"

	"github.com/obsidianstack/piggyback/agent/internal/exposition"
	"github.com/obsidianstack/piggyback/agent/internal/status"
	"github.com/obsidianstack/piggyback/pkg/types"
)

// Handler is the HTTP handler for the status endpoints.
type Handler struct {
	store *status.Store
	mux   *http.ServeMux
}

// New creates a Handler wired to the given result store and registers all routes.
func New(st *status.Store) http.Handler {
	h := &Handler{store: st, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/hosts", h.listHosts)
	h.mux.HandleFunc("/api/v1/hosts/", h.getHost) // subtree: {hostname}[/payload]
	h.mux.HandleFunc("/metrics", h.metrics)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health: worst state and state counts.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	entries := h.store.List()
	resp := HealthResponse{HostCount: len(entries)}
	if len(entries) == 0 {
		resp.State = "unknown"
		jsonResp(w, http.StatusOK, resp)
		return
	}

	worst := types.StateOK
	for _, e := range entries {
		st := e.Result.Summary.State
		worst = types.WorstOf(worst, st)
		switch st {
		case types.StateOK:
			resp.OKCount++
		case types.StateWarn:
			resp.WarnCount++
		case types.StateCrit:
			resp.CritCount++
		default:
			resp.UnknownCount++
		}
	}
	resp.State = strings.ToLower(worst.String())
	jsonResp(w, http.StatusOK, resp)
}

// listHosts returns GET /api/v1/hosts: all live hosts.
func (h *Handler) listHosts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	entries := h.store.List()
	out := make([]HostResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toHostResponse(e))
	}
	jsonResp(w, http.StatusOK, out)
}

// getHost returns GET /api/v1/hosts/{hostname} or its raw payload.
func (h *Handler) getHost(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/hosts/")
	if rest == "" {
		h.listHosts(w, r)
		return
	}
	hostname, sub, _ := strings.Cut(rest, "/")
	if sub != "" && sub != "payload" {
		jsonErr(w, http.StatusNotFound, "not found")
		return
	}

	e, ok := h.store.Get(hostname)
	if !ok {
		jsonErr(w, http.StatusNotFound, "host not found")
		return
	}

	if sub == "payload" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write(e.Result.Payload) //nolint:errcheck
		return
	}
	jsonResp(w, http.StatusOK, toHostResponse(e))
}

// metrics returns GET /metrics: the live results in text exposition format.
func (h *Handler) metrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	w.Header().Set("Content-Type", string(expfmt.NewFormat(expfmt.TypeTextPlain)))
	w.WriteHeader(http.StatusOK)
	exposition.Write(w, h.store.Results()) //nolint:errcheck
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

// toHostResponse maps a status.Entry to its JSON representation.
func toHostResponse(e *status.Entry) HostResponse {
	res := e.Result
	srcs := make([]SourceResponse, 0, len(res.Sources))
	for _, rec := range res.Sources {
		srcs = append(srcs, SourceResponse{
			Hostname:  rec.SourceHostname,
			Processed: rec.SuccessfullyProcessed,
			Reason:    rec.Reason,
			State:     rec.ReasonStatus.String(),
		})
	}
	resp := HostResponse{
		Hostname:     res.Hostname,
		State:        res.Summary.State.String(),
		StateCode:    int(res.Summary.State),
		Detail:       res.Summary.Detail,
		PayloadBytes: len(res.Payload),
		Sources:      srcs,
		LastSeen:     e.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if res.Err != nil {
		resp.Error = res.Err.Error()
	}
	return resp
}
