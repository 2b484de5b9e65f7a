package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"slices"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dokzlo13/wxstatusd/internal/command"
	"github.com/dokzlo13/wxstatusd/internal/device"
	"github.com/dokzlo13/wxstatusd/internal/ledger"
	"github.com/dokzlo13/wxstatusd/internal/settings"
)

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Status.Report())
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	byName := s.deps.Devices.Devices(r.Context())

	out := make([]device.Snapshot, 0, len(byName))
	for name, d := range byName {
		snap := d.Snapshot()
		snap.Name = name
		out = append(out, snap)
	}
	slices.SortFunc(out, func(a, b device.Snapshot) int { return a.Ref - b.Ref })

	writeJSON(w, http.StatusOK, map[string]any{"devices": out})
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	d, ok := s.deviceFromPath(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, d.Snapshot())
}

type groupRequest struct {
	Group string `json:"group"`
}

func (s *Server) handleAddToGroup(w http.ResponseWriter, r *http.Request) {
	d, ok := s.deviceFromPath(w, r)
	if !ok {
		return
	}

	var req groupRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.deps.Devices.AddToGroup(d.Ref(), req.Group); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d.Snapshot())
}

func (s *Server) handleRemoveFromGroup(w http.ResponseWriter, r *http.Request) {
	d, ok := s.deviceFromPath(w, r)
	if !ok {
		return
	}
	if err := s.deps.Devices.RemoveFromGroup(d.Ref(), chi.URLParam(r, "group")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d.Snapshot())
}

func (s *Server) handleListGroups(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"groups": s.deps.Devices.Groups()})
}

type collectionResponse struct {
	Filter        string `json:"filter"`
	Devices       []int  `json:"devices"`
	MaxLedCount   int    `json:"max_led_count"`
	Led           string `json:"led,omitempty"`
	SupportsLed   *bool  `json:"supports_led,omitempty"`
	NotSupporting *int   `json:"not_supporting,omitempty"`
}

// handleCollection answers capability questions about a filter, optionally
// for one LED position.
func (s *Server) handleCollection(w http.ResponseWriter, r *http.Request) {
	filter := chi.URLParam(r, "filter")
	c, err := s.deps.Devices.Collection(filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := collectionResponse{
		Filter:      filter,
		Devices:     make([]int, 0, c.Len()),
		MaxLedCount: c.MaxLedCount(),
	}
	for _, d := range c.Devices() {
		resp.Devices = append(resp.Devices, d.Ref())
	}

	if raw := r.URL.Query().Get("led"); raw != "" {
		led, err := command.ParseLed(raw)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		supports := c.SupportsLed(int(led))
		missing := c.CountNotSupporting(int(led))
		resp.Led = led.String()
		resp.SupportsLed = &supports
		resp.NotSupporting = &missing
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSetLed(w http.ResponseWriter, r *http.Request) {
	var req command.Request
	if !decodeBody(w, r, &req) {
		return
	}

	cmd, err := s.deps.Commands.Submit(req.Command("api"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"id": cmd.ID, "command": cmd})
}

func (s *Server) handleRunAction(w http.ResponseWriter, r *http.Request) {
	if s.deps.Actions == nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "no automation script loaded")
		return
	}

	args := map[string]any{}
	if !decodeOptionalBody(w, r, &args) {
		return
	}

	name := chi.URLParam(r, "name")
	if err := s.deps.Actions(name, args); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"action": name, "status": "queued"})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Settings.Values())
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var u settings.Update
	if !decodeBody(w, r, &u) {
		return
	}
	if err := s.deps.Settings.Apply(u); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Settings.Values())
}

func (s *Server) handleClearCache(w http.ResponseWriter, _ *http.Request) {
	s.deps.Cache.ClearCache()
	writeJSON(w, http.StatusOK, map[string]any{"status": "cleared"})
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	entries, err := s.deps.Ledger.Recent(ledger.EventType(r.URL.Query().Get("type")), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if entries == nil {
		entries = []*ledger.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) deviceFromPath(w http.ResponseWriter, r *http.Request) (*device.Device, bool) {
	ref, err := strconv.Atoi(chi.URLParam(r, "ref"))
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "device ref must be a number")
		return nil, false
	}
	d, err := s.deps.Devices.Device(ref)
	if err != nil {
		writeDomainError(w, err)
		return nil, false
	}
	return d, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// decodeOptionalBody accepts an empty body.
func decodeOptionalBody(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body: "+err.Error())
	return false
}
