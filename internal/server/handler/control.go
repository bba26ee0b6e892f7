package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/teamnova/tradecore/internal/domain"
)

// KillSwitch is the subset of router.Router used to halt/resume signal
// admission without restarting the process.
type KillSwitch interface {
	SetKillSwitch(engaged bool)
	KillSwitchEngaged() bool
}

// PositionStopsStore is the subset of domain.PositionStore the stops
// endpoint needs to read and persist a position's SL/TP fields.
type PositionStopsStore interface {
	GetByID(ctx context.Context, id string) (domain.Position, error)
	Update(ctx context.Context, pos domain.Position) error
}

// Notifier is the subset of notify.Notifier the control handler uses to
// alert operators an authenticated caller toggled the kill switch.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// ControlHandler serves operator control-surface endpoints: the router kill
// switch and per-position stop-loss/take-profit updates. When killSwitch is
// nil (the cadence-driven runtime failed to build, or this mode doesn't run
// one), kill-switch requests return 501.
type ControlHandler struct {
	killSwitch KillSwitch
	positions  PositionStopsStore
	notifier   Notifier
	logger     *slog.Logger
}

// NewControlHandler creates a ControlHandler. Any argument may be nil.
func NewControlHandler(killSwitch KillSwitch, positions PositionStopsStore, notifier Notifier, logger *slog.Logger) *ControlHandler {
	return &ControlHandler{killSwitch: killSwitch, positions: positions, notifier: notifier, logger: logger}
}

// GetKillSwitch returns whether signal admission is currently halted.
// GET /api/control/kill-switch
func (h *ControlHandler) GetKillSwitch(w http.ResponseWriter, r *http.Request) {
	if h.killSwitch == nil {
		writeError(w, http.StatusNotImplemented, "kill switch not available: trading runtime not running")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"engaged": h.killSwitch.KillSwitchEngaged()})
}

// setKillSwitchRequest is the JSON body for POST /api/control/kill-switch.
type setKillSwitchRequest struct {
	Engaged bool `json:"engaged"`
}

// SetKillSwitch engages or disengages the kill switch.
// POST /api/control/kill-switch
func (h *ControlHandler) SetKillSwitch(w http.ResponseWriter, r *http.Request) {
	if h.killSwitch == nil {
		writeError(w, http.StatusNotImplemented, "kill switch not available: trading runtime not running")
		return
	}
	var req setKillSwitchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	h.killSwitch.SetKillSwitch(req.Engaged)
	h.logger.WarnContext(r.Context(), "kill switch toggled", slog.Bool("engaged", req.Engaged))
	if h.notifier != nil {
		state := "disengaged"
		if req.Engaged {
			state = "engaged"
		}
		if err := h.notifier.Notify(r.Context(), "kill_switch_toggled", "Kill switch "+state,
			"an operator "+state+" the signal admission kill switch"); err != nil {
			h.logger.ErrorContext(r.Context(), "notify: kill switch alert failed", slog.String("error", err.Error()))
		}
	}
	writeJSON(w, http.StatusOK, map[string]bool{"engaged": req.Engaged})
}

// updateStopsRequest is the JSON body for PUT /api/positions/{id}/stops.
// Either field may be omitted (null) to leave that stop untouched, or set to
// a value to update it. There is no way to clear a previously set stop
// through this endpoint; re-open the position instead.
type updateStopsRequest struct {
	TakeProfit *float64 `json:"take_profit"`
	StopLoss   *float64 `json:"stop_loss"`
}

// UpdateStops updates a position's take-profit and/or stop-loss price.
// PUT /api/positions/{id}/stops
func (h *ControlHandler) UpdateStops(w http.ResponseWriter, r *http.Request) {
	if h.positions == nil {
		writeError(w, http.StatusNotImplemented, "position store not available")
		return
	}
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing position id")
		return
	}

	var req updateStopsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.TakeProfit == nil && req.StopLoss == nil {
		writeError(w, http.StatusBadRequest, "at least one of take_profit or stop_loss is required")
		return
	}

	pos, err := h.positions.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "position not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get position failed",
			slog.String("position_id", id), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load position")
		return
	}

	if req.TakeProfit != nil {
		pos.TakeProfit = req.TakeProfit
	}
	if req.StopLoss != nil {
		pos.StopLoss = req.StopLoss
	}

	if err := h.positions.Update(r.Context(), pos); err != nil {
		h.logger.ErrorContext(r.Context(), "handler: update position stops failed",
			slog.String("position_id", id), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to update position")
		return
	}

	writeJSON(w, http.StatusOK, pos)
}
