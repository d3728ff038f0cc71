package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/marketboard/internal/depth"
	"github.com/rxtech-lab/marketboard/internal/market"
	"github.com/rxtech-lab/marketboard/internal/scheduler"
	"github.com/rxtech-lab/marketboard/internal/types"
	"github.com/rxtech-lab/marketboard/internal/version"
	"github.com/rxtech-lab/marketboard/pkg/errors"
	"go.uber.org/zap"
)

type stateResponse struct {
	Mode      types.Mode        `json:"mode"`
	Source    string            `json:"source"`
	View      market.View       `json:"view"`
	Fallback  *string           `json:"fallbackReason,omitempty"`
	Scheduler *scheduler.Status `json:"scheduler,omitempty"`
}

type depthResponse struct {
	Symbol    string                        `json:"symbol"`
	Bids      []types.DepthLevel            `json:"bids"`
	Asks      []types.DepthLevel            `json:"asks"`
	Stacked   bool                          `json:"stacked"`
	Spread    optional.Option[types.Spread] `json:"spread"`
	Imbalance optional.Option[float64]      `json:"imbalance"`
}

type symbolRequest struct {
	Symbol string `json:"symbol" validate:"required"`
}

type schedulerRequest struct {
	AutoRefresh *bool   `json:"autoRefresh"`
	Interval    *string `json:"interval" validate:"omitempty"`
	Scope       *string `json:"scope" validate:"omitempty,oneof=all ticker depth trades"`
	LiveTick    *bool   `json:"liveTick"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
		"mode":    string(s.orch.Mode()),
		"source":  s.orch.SourceName(),
	})
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	view := s.orch.View()

	resp := stateResponse{
		Mode:      s.orch.Mode(),
		Source:    s.orch.SourceName(),
		View:      view,
		Fallback:  nil,
		Scheduler: nil,
	}

	if reason, err := view.State.FallbackReason().Take(); err == nil {
		resp.Fallback = &reason
	}

	if s.sched != nil {
		status := s.sched.Status()
		resp.Scheduler = &status
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTicker(w http.ResponseWriter, r *http.Request) {
	view := s.viewFor(r, types.DataKindTicker)

	ticker, err := view.Ticker.Take()
	if err != nil {
		writeError(w, http.StatusNotFound, "ticker not loaded")

		return
	}

	writeJSON(w, http.StatusOK, ticker)
}

func (s *Server) handleDepth(w http.ResponseWriter, r *http.Request) {
	levels, err := intParam(r, "levels")
	if err != nil {
		s.writeErr(w, err)

		return
	}

	stacked, err := boolParam(r, "stacked")
	if err != nil {
		s.writeErr(w, err)

		return
	}

	view := s.viewFor(r, types.DataKindDepth)

	snapshot, err := view.Depth.Take()
	if err != nil {
		writeError(w, http.StatusNotFound, "depth not loaded")

		return
	}

	book, err := view.Book.Take()
	if err != nil || levels > 0 {
		book = depth.Normalize(snapshot, levels)
	}

	asks := book.Asks
	if stacked {
		asks = book.StackedAsks()
	}

	writeJSON(w, http.StatusOK, depthResponse{
		Symbol:    book.Symbol,
		Bids:      book.Bids,
		Asks:      asks,
		Stacked:   stacked,
		Spread:    book.Spread,
		Imbalance: book.Imbalance(),
	})
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit")
	if err != nil {
		s.writeErr(w, err)

		return
	}

	trades := s.viewFor(r, types.DataKindTrades).Trades
	if limit > 0 && len(trades) > limit {
		trades = trades[:limit]
	}

	if trades == nil {
		trades = []types.Trade{}
	}

	writeJSON(w, http.StatusOK, trades)
}

func (s *Server) handleTickers(w http.ResponseWriter, r *http.Request) {
	tickers := s.viewFor(r, types.DataKindAllTickers).AllTickers
	if tickers == nil {
		tickers = []types.Ticker{}
	}

	writeJSON(w, http.StatusOK, tickers)
}

// handleRefresh starts a refresh of one kind, or of every kind when none is
// given. With wait=true it answers with the resulting view.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	kinds := types.AllDataKinds

	if raw := r.URL.Query().Get("kind"); raw != "" {
		kind, err := types.ParseDataKind(raw)
		if err != nil {
			s.writeErr(w, err)

			return
		}

		kinds = []types.DataKind{kind}
	}

	wait, err := boolParam(r, "wait")
	if err != nil {
		s.writeErr(w, err)

		return
	}

	if wait {
		writeJSON(w, http.StatusOK, s.orch.RefreshAndWait(r.Context(), kinds...))

		return
	}

	s.orch.Refresh(s.lifetimeContext(), kinds...)
	writeJSON(w, http.StatusAccepted, s.orch.State())
}

func (s *Server) handleSetSymbol(w http.ResponseWriter, r *http.Request) {
	var req symbolRequest
	if err := s.decode(r, &req); err != nil {
		s.writeErr(w, err)

		return
	}

	if err := s.orch.SetSymbol(req.Symbol); err != nil {
		s.writeErr(w, err)

		return
	}

	s.orch.Refresh(s.lifetimeContext(), types.AllDataKinds...)
	writeJSON(w, http.StatusOK, map[string]string{"symbol": s.orch.Symbol()})
}

func (s *Server) handleSchedulerStatus(w http.ResponseWriter, _ *http.Request) {
	if s.sched == nil {
		s.writeErr(w, errors.New(errors.ErrCodeSchedulerStopped, "scheduler is not configured"))

		return
	}

	writeJSON(w, http.StatusOK, s.sched.Status())
}

func (s *Server) handleSchedulerUpdate(w http.ResponseWriter, r *http.Request) {
	if s.sched == nil {
		s.writeErr(w, errors.New(errors.ErrCodeSchedulerStopped, "scheduler is not configured"))

		return
	}

	var req schedulerRequest
	if err := s.decode(r, &req); err != nil {
		s.writeErr(w, err)

		return
	}

	// parse everything first so a bad field changes nothing
	var interval time.Duration

	if req.Interval != nil {
		d, err := time.ParseDuration(*req.Interval)
		if err != nil {
			s.writeErr(w, errors.Wrap(errors.ErrCodeInvalidInterval, "invalid interval", err))

			return
		}

		interval = d
	}

	var scope scheduler.Scope

	if req.Scope != nil {
		parsed, err := scheduler.ParseScope(*req.Scope)
		if err != nil {
			s.writeErr(w, err)

			return
		}

		scope = parsed
	}

	if req.Interval != nil {
		if err := s.sched.SetInterval(interval); err != nil {
			s.writeErr(w, err)

			return
		}
	}

	if req.Scope != nil {
		if err := s.sched.SetScope(scope); err != nil {
			s.writeErr(w, err)

			return
		}
	}

	if req.AutoRefresh != nil {
		s.sched.SetAutoRefresh(*req.AutoRefresh)
	}

	if req.LiveTick != nil {
		s.sched.SetLiveTick(*req.LiveTick)
	}

	writeJSON(w, http.StatusOK, s.sched.Status())
}

// viewFor refreshes kind first when the request asks for refresh=true.
func (s *Server) viewFor(r *http.Request, kind types.DataKind) market.View {
	if refresh, err := boolParam(r, "refresh"); err == nil && refresh {
		return s.orch.RefreshAndWait(r.Context(), kind)
	}

	return s.orch.View()
}

func (s *Server) decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidParameter, "invalid request body", err)
	}

	if err := s.validate.Struct(v); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidParameter, "invalid request body", err)
	}

	return nil
}

func (s *Server) writeErr(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Warn("request failed", zap.Error(err))
	}

	writeJSON(w, status, map[string]any{
		"error": err.Error(),
		"code":  int(errors.GetCode(err)),
	})
}

func statusFor(err error) int {
	code := errors.GetCode(err)

	switch {
	case code == errors.ErrCodeSchedulerRunning:
		return http.StatusConflict
	case code == errors.ErrCodeSchedulerStopped:
		return http.StatusServiceUnavailable
	case code.Category() == errors.CategoryValidation:
		return http.StatusBadRequest
	case code.Category() == errors.CategoryMarketData:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func intParam(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.Newf(errors.ErrCodeInvalidParameter, "%s must be a non-negative integer", name)
	}

	return n, nil
}

func boolParam(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}

	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, errors.Newf(errors.ErrCodeInvalidParameter, "%s must be a boolean", name)
	}

	return b, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
