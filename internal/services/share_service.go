package services

import (
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/trektally/backend/internal/models"
	"github.com/trektally/backend/internal/split"
)

// defaultPaymentMethod is persisted when a debtor marks a share paid without
// saying how.
const defaultPaymentMethod = "Other"

// ShareService transitions individual expense shares through the settlement
// lifecycle.
type ShareService struct {
	db        *sql.DB
	validator *ValidationHelper
}

func NewShareService(db *sql.DB) *ShareService {
	return &ShareService{db: db, validator: NewValidationHelper()}
}

// UpdateShareRequest is the lifecycle transition payload.
type UpdateShareRequest struct {
	Status        string `json:"status" validate:"required,oneof=pending accepted disputed paid rejected"`
	PaymentMethod string `json:"paymentMethod" validate:"omitempty,max=40"`
}

// UpdateStatus moves a share to a new settlement status
// @Summary Update share status
// @Description Transition a share through the settlement lifecycle; only the debtor may transition their own share
// @Tags shares
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param shareId path string true "Share ID"
// @Param request body UpdateShareRequest true "New status"
// @Success 200 {object} object{success=bool,share=models.ExpenseShare}
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /shares/{shareId}/status [put]
func (s *ShareService) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	callerID, ok := r.Context().Value("userID").(string)
	if !ok || callerID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}
	shareID := chi.URLParam(r, "shareId")

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req UpdateShareRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	share, err := s.setShareStatus(r, shareID, callerID, models.ShareStatus(req.Status), req.PaymentMethod)
	if err != nil {
		slog.Error("share status update failed", "share_id", shareID, "caller_id", callerID,
			"status", req.Status, "error", err)
		SendError(w, err)
		return
	}

	slog.Info("share status updated", "share_id", shareID, "status", share.Status)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"share":   share,
	})
}

// setShareStatus reads the current status under lock, validates the
// transition, and persists the new state. The update is additionally filtered
// by user_id so the store itself enforces the debtor-only rule.
func (s *ShareService) setShareStatus(r *http.Request, shareID, callerID string, newStatus models.ShareStatus, paymentMethod string) (*models.ExpenseShare, error) {
	ctx := r.Context()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, models.WrapError(models.KindStore, "failed to start transaction", err)
	}
	defer tx.Rollback()

	var debtorID string
	var current models.ShareStatus
	err = tx.QueryRowContext(ctx,
		`SELECT user_id, status FROM expense_shares WHERE id = $1 FOR UPDATE`, shareID).
		Scan(&debtorID, &current)
	if err == sql.ErrNoRows {
		return nil, models.NewError(models.KindNotFound, "Share not found")
	}
	if err != nil {
		return nil, models.WrapError(models.KindStore, "share lookup failed", err)
	}

	if debtorID != callerID {
		return nil, models.NewError(models.KindPermissionDenied, "Only the debtor can change a share's status")
	}

	if err := split.Transition(current, newStatus); err != nil {
		return nil, err
	}

	var share models.ExpenseShare
	if newStatus == models.SharePaid {
		method := paymentMethod
		if method == "" {
			method = defaultPaymentMethod
		}
		err = tx.QueryRowContext(ctx, `
			UPDATE expense_shares
			SET status = $1, payment_method = $2, payment_date = NOW()
			WHERE id = $3 AND user_id = $4
			RETURNING id, expense_id, user_id, amount, status, payment_method, payment_date`,
			newStatus, method, shareID, callerID).
			Scan(&share.ID, &share.ExpenseID, &share.UserID, &share.Amount,
				&share.Status, &share.PaymentMethod, &share.PaymentDate)
	} else {
		err = tx.QueryRowContext(ctx, `
			UPDATE expense_shares
			SET status = $1
			WHERE id = $2 AND user_id = $3
			RETURNING id, expense_id, user_id, amount, status, payment_method, payment_date`,
			newStatus, shareID, callerID).
			Scan(&share.ID, &share.ExpenseID, &share.UserID, &share.Amount,
				&share.Status, &share.PaymentMethod, &share.PaymentDate)
	}
	if err != nil {
		return nil, models.WrapError(models.KindStore, "share update failed", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, models.WrapError(models.KindStore, "failed to commit share update", err)
	}
	return &share, nil
}
