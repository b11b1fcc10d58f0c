// Package handler provides HTTP request handlers for the twin control API.
package handler

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/LemonScripter/metaspace-fdir-public/internal/biocode"
	twinerrors "github.com/LemonScripter/metaspace-fdir-public/internal/errors"
	"github.com/LemonScripter/metaspace-fdir-public/internal/middleware"
	"github.com/LemonScripter/metaspace-fdir-public/internal/model"
	"github.com/LemonScripter/metaspace-fdir-public/internal/service"
)

// Twin is the control surface the handlers drive
type Twin interface {
	InjectChaos(ctx context.Context, killed []model.NodeID) (*service.CycleResult, error)
	ProcessRegeneration(ctx context.Context) (*service.CycleResult, error)
	State() service.NetworkView
	LatestValidationReport() *service.ValidationReport
	SetRegenRate(rate float64) float64
	Reset()
	VerifyAudit() error
	AuditEntries() []model.AuditEntry
}

// ChaosRequest lists the nodes to kill
type ChaosRequest struct {
	KilledIDs []string `json:"killed_ids" validate:"dive,required"`
}

// RegenRateRequest sets the regeneration rate
type RegenRateRequest struct {
	Rate *float64 `json:"rate" validate:"required"`
}

// DecodeRequest decodes one hex word
type DecodeRequest struct {
	Level int    `json:"level" validate:"required,min=1,max=3"`
	Hex   string `json:"hex" validate:"required"`
}

// DecodeResponse carries the typed fields of a decoded word
type DecodeResponse struct {
	Level   int         `json:"level"`
	Hex     string      `json:"hex"`
	Decoded interface{} `json:"decoded"`
}

// AuditVerifyResponse reports the state of the operations log hash chain
type AuditVerifyResponse struct {
	Valid   bool   `json:"valid"`
	Entries int    `json:"entries"`
	Head    string `json:"head,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ErrorResponse is the body of every non-2xx response written by a handler
type ErrorResponse struct {
	Status    string                 `json:"status"`
	Code      int                    `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// Handlers contains all HTTP handlers and their dependencies
type Handlers struct {
	twin     Twin
	validate *validator.Validate
	logger   *zap.Logger
	timeout  time.Duration
}

// NewHandlers creates a new Handlers instance
func NewHandlers(twin Twin, logger *zap.Logger, timeout time.Duration) *Handlers {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Handlers{
		twin:     twin,
		validate: validator.New(),
		logger:   logger,
		timeout:  timeout,
	}
}

// InjectChaos handles POST /v1/chaos
func (h *Handlers) InjectChaos(w http.ResponseWriter, r *http.Request) {
	var req ChaosRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	known := make(map[model.NodeID]bool)
	for _, id := range model.RosterIDs() {
		known[id] = true
	}
	ids := make([]model.NodeID, 0, len(req.KilledIDs))
	for _, raw := range req.KilledIDs {
		id := model.NodeID(raw)
		if !known[id] {
			h.writeError(w, r, twinerrors.UnknownNode(raw))
			return
		}
		ids = append(ids, id)
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	res, err := h.twin.InjectChaos(ctx, ids)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, res)
}

// Regenerate handles POST /v1/regenerate
func (h *Handlers) Regenerate(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	res, err := h.twin.ProcessRegeneration(ctx)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, res)
}

// GetState handles GET /v1/state
func (h *Handlers) GetState(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, http.StatusOK, h.twin.State())
}

// GetLatestValidation handles GET /v1/validation/latest
func (h *Handlers) GetLatestValidation(w http.ResponseWriter, r *http.Request) {
	report := h.twin.LatestValidationReport()
	if report == nil {
		h.writeError(w, r, twinerrors.NotFound("validation report"))
		return
	}
	h.writeJSONResponse(w, http.StatusOK, report)
}

// SetRegenRate handles PUT /v1/regen-rate
func (h *Handlers) SetRegenRate(w http.ResponseWriter, r *http.Request) {
	var req RegenRateRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	applied := h.twin.SetRegenRate(*req.Rate)
	h.writeJSONResponse(w, http.StatusOK, map[string]float64{"regen_rate": applied})
}

// Reset handles POST /v1/reset
func (h *Handlers) Reset(w http.ResponseWriter, r *http.Request) {
	h.twin.Reset()
	h.logger.Info("Twin reset via API", zap.String("request_id", middleware.RequestIDFrom(r.Context())))
	h.writeJSONResponse(w, http.StatusOK, h.twin.State())
}

// DecodeBioCode handles POST /v1/biocode/decode
func (h *Handlers) DecodeBioCode(w http.ResponseWriter, r *http.Request) {
	var req DecodeRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	decoded, err := biocode.DecodeHex(biocode.Level(req.Level), req.Hex)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, DecodeResponse{Level: req.Level, Hex: req.Hex, Decoded: decoded})
}

// VerifyAudit handles GET /v1/audit/verify
func (h *Handlers) VerifyAudit(w http.ResponseWriter, r *http.Request) {
	entries := h.twin.AuditEntries()
	resp := AuditVerifyResponse{Valid: true, Entries: len(entries)}
	if n := len(entries); n > 0 {
		resp.Head = hex.EncodeToString(entries[n-1].Hash)
	}
	if err := h.twin.VerifyAudit(); err != nil {
		resp.Valid = false
		resp.Error = err.Error()
		h.logger.Error("Audit chain verification failed", zap.Error(err))
	}
	h.writeJSONResponse(w, http.StatusOK, resp)
}

// NotFound answers unknown routes
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	h.writeError(w, r, twinerrors.NotFound("endpoint"))
}

// MethodNotAllowed answers known routes hit with the wrong method
func (h *Handlers) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, http.StatusMethodNotAllowed, ErrorResponse{
		Status:    "error",
		Code:      int(twinerrors.ErrCodeInvalidArgument),
		Message:   "method not allowed",
		RequestID: middleware.RequestIDFrom(r.Context()),
	})
}

func (h *Handlers) decode(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return twinerrors.InvalidArgument("invalid request body", err)
	}
	if err := h.validate.Struct(dst); err != nil {
		return twinerrors.InvalidArgument("request validation failed", err)
	}
	return nil
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	resp := ErrorResponse{
		Status:    "error",
		Code:      int(twinerrors.ErrCodeInternal),
		Message:   err.Error(),
		RequestID: middleware.RequestIDFrom(r.Context()),
	}
	status := http.StatusInternalServerError

	var te *twinerrors.TwinError
	if errors.As(err, &te) {
		resp.Code = int(te.Code)
		if len(te.Details) > 0 {
			resp.Details = te.Details
		}
		status = te.HTTPStatus()
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	h.writeJSONResponse(w, status, resp)
}

func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", zap.Error(err))
	}
}
