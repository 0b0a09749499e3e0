// Package handler exposes the issuance and verification endpoints. It maps
// transport input to domain types and domain errors back to the wire; all
// protocol decisions live in the service.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"otpgate/internal/otp/service"
	"otpgate/pkg/domain"
	dErrors "otpgate/pkg/domain-errors"
	"otpgate/pkg/platform/httputil"
)

// Service is the lifecycle contract the handler depends on.
type Service interface {
	RequestOTP(ctx context.Context, nationalID domain.NationalID) (string, error)
	VerifyOTP(ctx context.Context, nationalID domain.NationalID, candidate string) (*service.VerifyResult, error)
}

type Handler struct {
	otp    Service
	logger *slog.Logger
}

func New(otp Service, logger *slog.Logger) *Handler {
	return &Handler{otp: otp, logger: logger}
}

// Register mounts the OTP routes. throttle wraps both entry points; pass nil
// middleware to mount without rate limiting (tests).
func (h *Handler) Register(r chi.Router, throttle func(http.Handler) http.Handler) {
	otpRouter := chi.NewRouter()
	if throttle != nil {
		otpRouter.Use(throttle)
	}
	otpRouter.Post("/request", h.handleRequest)
	otpRouter.Post("/verify", h.handleVerify)

	r.Mount("/v1/otp", otpRouter)
}

type requestOTPRequest struct {
	NationalID string `json:"national_id"`
}

type requestOTPResponse struct {
	MaskedMobile string `json:"masked_mobile"`
}

type verifyOTPRequest struct {
	NationalID string `json:"national_id"`
	OTP        string `json:"otp"`
}

type verifyOTPResponse struct {
	Verified   bool      `json:"verified"`
	Receipt    string    `json:"receipt,omitempty"`
	VerifiedAt time.Time `json:"verified_at"`
}

func (h *Handler) handleRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := chimiddleware.GetReqID(ctx)

	req, ok := httputil.DecodeAndPrepare[requestOTPRequest](w, r, h.logger, requestID)
	if !ok {
		return
	}

	nationalID, err := domain.ParseNationalID(req.NationalID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	masked, err := h.otp.RequestOTP(ctx, nationalID)
	if err != nil {
		h.logger.InfoContext(ctx, "otp request rejected",
			"request_id", requestID,
			"national_id", nationalID.Masked(),
			"code", dErrors.CodeOf(err),
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, requestOTPResponse{MaskedMobile: masked})
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := chimiddleware.GetReqID(ctx)

	req, ok := httputil.DecodeAndPrepare[verifyOTPRequest](w, r, h.logger, requestID)
	if !ok {
		return
	}

	nationalID, err := domain.ParseNationalID(req.NationalID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if !govalidator.IsNumeric(req.OTP) || !govalidator.StringLength(req.OTP, "4", "9") {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "otp must be a numeric code"))
		return
	}

	result, err := h.otp.VerifyOTP(ctx, nationalID, req.OTP)
	if err != nil {
		h.logger.InfoContext(ctx, "otp verification rejected",
			"request_id", requestID,
			"national_id", nationalID.Masked(),
			"code", dErrors.CodeOf(err),
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, verifyOTPResponse{
		Verified:   true,
		Receipt:    result.Receipt,
		VerifiedAt: result.VerifiedAt,
	})
}
