package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/trektally/backend/internal/services"
)

// QRHandler exposes the share payment QR endpoints.
type QRHandler struct {
	service   *services.QRService
	validator *services.ValidationHelper
}

func NewQRHandler(service *services.QRService) *QRHandler {
	return &QRHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

// GetShareQR returns a UPI payment link and QR image for a share
// @Summary Get share payment QR
// @Description Generate a UPI deep link and QR image for paying a share; debtor only
// @Tags QR
// @Produce json
// @Security BearerAuth
// @Param shareId path string true "Share ID"
// @Success 200 {object} object{success=bool,link=string,qrImage=string}
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /shares/{shareId}/qr [get]
func (h *QRHandler) GetShareQR(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}
	shareID := chi.URLParam(r, "shareId")

	payment, err := h.service.GeneratePaymentQR(r.Context(), shareID, userID)
	if err != nil {
		services.SendError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"link":    payment.Link,
		"qrImage": payment.QRImage,
		"amount":  payment.Amount,
		"payee":   payment.Payee,
	})
}

// ResolvePaymentNonce resolves a payment nonce back to its share
// @Summary Resolve payment nonce
// @Description Look up and consume the share reference behind a UPI payment nonce
// @Tags QR
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{nonce=string} true "Nonce from a scanned payment link"
// @Success 200 {object} object{success=bool,data=object}
// @Failure 404 {object} services.ErrorResponse
// @Router /shares/payment-nonce [post]
func (h *QRHandler) ResolvePaymentNonce(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Nonce string `json:"nonce" validate:"required"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	result, err := h.service.ResolvePaymentNonce(r.Context(), req.Nonce)
	if err != nil {
		services.SendError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"data":    result,
	})
}
