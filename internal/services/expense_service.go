package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"github.com/trektally/backend/internal/config"
	"github.com/trektally/backend/internal/models"
	"github.com/trektally/backend/internal/split"
	"github.com/trektally/backend/internal/storage"
)

const (
	fallbackCategoryName = "Uncategorized"
	fallbackUserName     = "Unknown member"
)

// ExpenseService owns the expense aggregation, creation and deletion
// operations for one event.
type ExpenseService struct {
	db        *sql.DB
	receipts  storage.ReceiptStore
	validator *ValidationHelper
	cfg       *config.AppConfig
}

func NewExpenseService(db *sql.DB, receipts storage.ReceiptStore, cfg *config.AppConfig) *ExpenseService {
	return &ExpenseService{
		db:        db,
		receipts:  receipts,
		validator: NewValidationHelper(),
		cfg:       cfg,
	}
}

// ExpenseListResponse is the denormalized per-viewer view of an event's
// expenses.
type ExpenseListResponse struct {
	MyExpenses   []models.ExpenseView  `json:"my_expenses"`
	SharedWithMe []models.ExpenseView  `json:"shared_with_me"`
	All          []models.ExpenseView  `json:"all"`
	Summary      models.ExpenseSummary `json:"summary"`
}

// CreateShareRequest is one debtor's portion in an expense creation payload.
type CreateShareRequest struct {
	UserID string  `json:"userId" validate:"required"`
	Amount float64 `json:"amount" validate:"gte=0"`
}

// CreateExpenseRequest is the creation payload. Date uses YYYY-MM-DD.
type CreateExpenseRequest struct {
	CategoryID  string               `json:"categoryId" validate:"omitempty,max=64"`
	Amount      float64              `json:"amount" validate:"required,gt=0"`
	Description string               `json:"description" validate:"required,max=200"`
	Date        string               `json:"date" validate:"required,datetime=2006-01-02"`
	Shares      []CreateShareRequest `json:"shares" validate:"omitempty,max=50,dive"`
}

// ListEventExpenses returns the aggregated expense view for one event
// @Summary List event expenses
// @Description Aggregated expenses, shares and balance summary for the authenticated viewer
// @Tags expenses
// @Produce json
// @Security BearerAuth
// @Param eventId path string true "Event ID"
// @Success 200 {object} ExpenseListResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /events/{eventId}/expenses [get]
func (s *ExpenseService) ListEventExpenses(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := r.Context().Value("userID").(string)
	if !ok || viewerID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}
	eventID := chi.URLParam(r, "eventId")

	resp, err := s.loadExpenses(r.Context(), eventID, viewerID)
	if err != nil {
		slog.Error("expense load failed", "event_id", eventID, "viewer_id", viewerID, "error", err)
		SendError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// loadExpenses produces a consistent denormalized view of an event's expenses
// for one viewer. Any lookup failure aborts the whole load; no partial data
// is ever returned.
func (s *ExpenseService) loadExpenses(ctx context.Context, eventID, viewerID string) (*ExpenseListResponse, error) {
	if err := s.eventExists(ctx, eventID); err != nil {
		return nil, err
	}
	if err := s.requireParticipant(ctx, eventID, viewerID); err != nil {
		return nil, err
	}

	all, err := s.fetchExpenses(ctx, eventID)
	if err != nil {
		return nil, err
	}

	// Nothing to decorate: skip the category and user lookups entirely.
	if len(all) == 0 {
		return &ExpenseListResponse{
			MyExpenses:   []models.ExpenseView{},
			SharedWithMe: []models.ExpenseView{},
			All:          []models.ExpenseView{},
		}, nil
	}

	if err := s.attachShares(ctx, all); err != nil {
		return nil, err
	}

	categoryIDs, userIDs := referencedIDs(all, viewerID)

	var categories map[string]models.ExpenseCategory
	var users map[string]string

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		categories, err = s.fetchCategories(gctx, categoryIDs)
		return err
	})
	g.Go(func() error {
		var err error
		users, err = s.fetchUserNames(gctx, userIDs)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	decorate(all, categories, users)

	mine, shared := split.Partition(all, viewerID)
	return &ExpenseListResponse{
		MyExpenses:   mine,
		SharedWithMe: shared,
		All:          all,
		Summary:      split.Summarize(mine, shared, viewerID),
	}, nil
}

func (s *ExpenseService) eventExists(ctx context.Context, eventID string) error {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM events WHERE id = $1`, eventID).Scan(&id)
	if err == sql.ErrNoRows {
		return models.NewError(models.KindNotFound, "Event not found")
	}
	if err != nil {
		return models.WrapError(models.KindStore, "event lookup failed", err)
	}
	return nil
}

func (s *ExpenseService) requireParticipant(ctx context.Context, eventID, userID string) error {
	var registered bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM registrations WHERE event_id = $1 AND user_id = $2)`,
		eventID, userID).Scan(&registered)
	if err != nil {
		return models.WrapError(models.KindStore, "registration lookup failed", err)
	}
	if !registered {
		return models.NewError(models.KindPermissionDenied, "You are not a participant of this event")
	}
	return nil
}

func (s *ExpenseService) fetchExpenses(ctx context.Context, eventID string) ([]models.ExpenseView, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_id, creator_id, category_id, amount, description, date, receipt_url, created_at
		FROM expenses
		WHERE event_id = $1
		ORDER BY date DESC, created_at DESC`, eventID)
	if err != nil {
		return nil, models.WrapError(models.KindStore, "expense lookup failed", err)
	}
	defer rows.Close()

	views := []models.ExpenseView{}
	for rows.Next() {
		var exp models.Expense
		if err := rows.Scan(&exp.ID, &exp.EventID, &exp.CreatorID, &exp.CategoryID,
			&exp.Amount, &exp.Description, &exp.Date, &exp.ReceiptURL, &exp.CreatedAt); err != nil {
			return nil, models.WrapError(models.KindStore, "expense scan failed", err)
		}
		views = append(views, models.ExpenseView{Expense: exp, Shares: []models.ShareView{}})
	}
	if err := rows.Err(); err != nil {
		return nil, models.WrapError(models.KindStore, "expense lookup failed", err)
	}
	return views, nil
}

func (s *ExpenseService) attachShares(ctx context.Context, views []models.ExpenseView) error {
	ids := make([]string, len(views))
	byID := make(map[string]*models.ExpenseView, len(views))
	for i := range views {
		ids[i] = views[i].ID
		byID[views[i].ID] = &views[i]
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, expense_id, user_id, amount, status, payment_method, payment_date
		FROM expense_shares
		WHERE expense_id = ANY($1)
		ORDER BY id`, pq.Array(ids))
	if err != nil {
		return models.WrapError(models.KindStore, "share lookup failed", err)
	}
	defer rows.Close()

	for rows.Next() {
		var sh models.ExpenseShare
		if err := rows.Scan(&sh.ID, &sh.ExpenseID, &sh.UserID, &sh.Amount,
			&sh.Status, &sh.PaymentMethod, &sh.PaymentDate); err != nil {
			return models.WrapError(models.KindStore, "share scan failed", err)
		}
		if view, ok := byID[sh.ExpenseID]; ok {
			view.Shares = append(view.Shares, models.ShareView{ExpenseShare: sh})
		}
	}
	if err := rows.Err(); err != nil {
		return models.WrapError(models.KindStore, "share lookup failed", err)
	}
	return nil
}

// referencedIDs collects the distinct category and user ids the views refer
// to, sorted so downstream queries are deterministic.
func referencedIDs(views []models.ExpenseView, viewerID string) (categoryIDs, userIDs []string) {
	catSet := map[string]struct{}{}
	userSet := map[string]struct{}{viewerID: {}}
	for _, v := range views {
		if v.CategoryID != nil {
			catSet[*v.CategoryID] = struct{}{}
		}
		userSet[v.CreatorID] = struct{}{}
		for _, sh := range v.Shares {
			userSet[sh.UserID] = struct{}{}
		}
	}
	for id := range catSet {
		categoryIDs = append(categoryIDs, id)
	}
	for id := range userSet {
		userIDs = append(userIDs, id)
	}
	sort.Strings(categoryIDs)
	sort.Strings(userIDs)
	return categoryIDs, userIDs
}

func (s *ExpenseService) fetchCategories(ctx context.Context, ids []string) (map[string]models.ExpenseCategory, error) {
	result := make(map[string]models.ExpenseCategory, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, icon FROM expense_categories WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, models.WrapError(models.KindStore, "category lookup failed", err)
	}
	defer rows.Close()

	for rows.Next() {
		var cat models.ExpenseCategory
		if err := rows.Scan(&cat.ID, &cat.Name, &cat.Icon); err != nil {
			return nil, models.WrapError(models.KindStore, "category scan failed", err)
		}
		result[cat.ID] = cat
	}
	return result, rows.Err()
}

func (s *ExpenseService) fetchUserNames(ctx context.Context, ids []string) (map[string]string, error) {
	result := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name FROM users WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, models.WrapError(models.KindStore, "user lookup failed", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, models.WrapError(models.KindStore, "user scan failed", err)
		}
		result[id] = name
	}
	return result, rows.Err()
}

// decorate resolves category and user references in place, falling back to
// placeholders for anything the lookups did not return.
func decorate(views []models.ExpenseView, categories map[string]models.ExpenseCategory, users map[string]string) {
	for i := range views {
		v := &views[i]

		v.CategoryName = fallbackCategoryName
		if v.CategoryID != nil {
			if cat, ok := categories[*v.CategoryID]; ok {
				v.CategoryName = cat.Name
				v.CategoryIcon = cat.Icon
			}
		}

		v.CreatorName = fallbackUserName
		if name, ok := users[v.CreatorID]; ok {
			v.CreatorName = name
		}

		for j := range v.Shares {
			sh := &v.Shares[j]
			sh.UserName = fallbackUserName
			if name, ok := users[sh.UserID]; ok {
				sh.UserName = name
			}
		}
	}
}

// CreateExpense records a new expense with its shares
// @Summary Create an expense
// @Description Create an expense with caller-supplied shares and an optional receipt attachment
// @Tags expenses
// @Accept json
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param eventId path string true "Event ID"
// @Param request body CreateExpenseRequest true "Expense payload"
// @Success 201 {object} object{expense=models.Expense,shares=[]models.ExpenseShare}
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /events/{eventId}/expenses [post]
func (s *ExpenseService) CreateExpense(w http.ResponseWriter, r *http.Request) {
	creatorID, ok := r.Context().Value("userID").(string)
	if !ok || creatorID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}
	eventID := chi.URLParam(r, "eventId")

	req, receipt, receiptHeader, err := s.parseCreateRequest(w, r)
	if err != nil {
		SendError(w, err)
		return
	}
	if receipt != nil {
		defer receipt.Close()
	}

	if err := s.validator.ValidateStruct(req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		SendError(w, models.NewError(models.KindValidation, "Invalid expense date"))
		return
	}

	if err := s.eventExists(r.Context(), eventID); err != nil {
		SendError(w, err)
		return
	}
	if err := s.requireParticipant(r.Context(), eventID, creatorID); err != nil {
		SendError(w, err)
		return
	}

	if err := validateShares(req, creatorID); err != nil {
		SendError(w, err)
		return
	}

	// Receipt goes to object storage before any row is written; an upload
	// failure must not leave a partial expense behind.
	var receiptURL *string
	if receipt != nil {
		url, err := s.uploadReceipt(r.Context(), receipt, receiptHeader)
		if err != nil {
			slog.Error("receipt upload failed", "event_id", eventID, "error", err)
			SendError(w, err)
			return
		}
		receiptURL = &url
	}

	expense := models.Expense{
		ID:          uuid.NewString(),
		EventID:     eventID,
		CreatorID:   creatorID,
		Amount:      req.Amount,
		Description: req.Description,
		Date:        date,
		ReceiptURL:  receiptURL,
		CreatedAt:   time.Now().UTC(),
	}
	if req.CategoryID != "" {
		expense.CategoryID = &req.CategoryID
	}

	shares, err := s.insertExpense(r.Context(), &expense, req.Shares)
	if err != nil {
		slog.Error("expense insert failed", "event_id", eventID, "error", err)
		SendError(w, err)
		return
	}

	slog.Info("expense created", "expense_id", expense.ID, "event_id", eventID,
		"amount", expense.Amount, "shares", len(shares))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{
		"expense": expense,
		"shares":  shares,
	})
}

// parseCreateRequest accepts either a JSON body or a multipart form with a
// "payload" JSON part and an optional "receipt" file part.
func (s *ExpenseService) parseCreateRequest(w http.ResponseWriter, r *http.Request) (*CreateExpenseRequest, multipart.File, *multipart.FileHeader, error) {
	var req CreateExpenseRequest

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(s.cfg.MaxReceiptBytes + 1<<20); err != nil {
			return nil, nil, nil, models.NewError(models.KindValidation, "Invalid multipart form")
		}
		if err := json.Unmarshal([]byte(r.FormValue("payload")), &req); err != nil {
			return nil, nil, nil, models.NewError(models.KindValidation, "Invalid expense payload")
		}
		file, header, err := r.FormFile("receipt")
		if err == http.ErrMissingFile {
			return &req, nil, nil, nil
		}
		if err != nil {
			return nil, nil, nil, models.NewError(models.KindValidation, "Invalid receipt attachment")
		}
		return &req, file, header, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return nil, nil, nil, models.NewError(models.KindValidation, "Invalid request body")
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, nil, nil, models.NewError(models.KindValidation, "Request body must only contain a single JSON object")
	}
	return &req, nil, nil, nil
}

// validateShares enforces the creation invariants: no self-shares, one share
// per debtor, and the share total may not exceed the expense amount.
func validateShares(req *CreateExpenseRequest, creatorID string) error {
	seen := make(map[string]struct{}, len(req.Shares))
	var total float64
	for _, sh := range req.Shares {
		if sh.UserID == creatorID {
			return models.NewError(models.KindValidation, "Expense creator cannot owe a share of their own expense")
		}
		if _, dup := seen[sh.UserID]; dup {
			return models.NewError(models.KindValidation, "Duplicate debtor in shares")
		}
		seen[sh.UserID] = struct{}{}
		total += sh.Amount
	}
	// Small epsilon absorbs float addition noise on equal splits.
	if total > req.Amount+0.01 {
		return models.NewError(models.KindValidation,
			fmt.Sprintf("Shares total %.2f exceeds expense amount %.2f", total, req.Amount))
	}
	return nil
}

func (s *ExpenseService) uploadReceipt(ctx context.Context, file multipart.File, header *multipart.FileHeader) (string, error) {
	if header.Size > s.cfg.MaxReceiptBytes {
		return "", models.NewError(models.KindValidation, "Receipt exceeds maximum size")
	}
	contentType := header.Header.Get("Content-Type")
	if !storage.AllowedContentType(contentType) {
		return "", models.NewError(models.KindValidation, "Receipt must be a JPEG, PNG or PDF")
	}
	url, err := s.receipts.Save(ctx, header.Filename, contentType, file)
	if err != nil {
		return "", models.WrapError(models.KindStore, "receipt upload failed", err)
	}
	return url, nil
}

// insertExpense writes the expense row and all share rows in one transaction.
func (s *ExpenseService) insertExpense(ctx context.Context, expense *models.Expense, reqShares []CreateShareRequest) ([]models.ExpenseShare, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, models.WrapError(models.KindStore, "failed to start transaction", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO expenses (id, event_id, creator_id, category_id, amount, description, date, receipt_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		expense.ID, expense.EventID, expense.CreatorID, expense.CategoryID,
		expense.Amount, expense.Description, expense.Date, expense.ReceiptURL, expense.CreatedAt)
	if err != nil {
		return nil, models.WrapError(models.KindStore, "failed to store expense", err)
	}

	shares := make([]models.ExpenseShare, 0, len(reqShares))
	for _, sh := range reqShares {
		share := models.ExpenseShare{
			ID:        uuid.NewString(),
			ExpenseID: expense.ID,
			UserID:    sh.UserID,
			Amount:    sh.Amount,
			Status:    models.SharePending,
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO expense_shares (id, expense_id, user_id, amount, status)
			VALUES ($1, $2, $3, $4, $5)`,
			share.ID, share.ExpenseID, share.UserID, share.Amount, share.Status)
		if err != nil {
			return nil, models.WrapError(models.KindStore, "failed to store expense share", err)
		}
		shares = append(shares, share)
	}

	if err := tx.Commit(); err != nil {
		return nil, models.WrapError(models.KindStore, "failed to commit expense", err)
	}
	return shares, nil
}

// DeleteExpense removes an expense and its shares
// @Summary Delete an expense
// @Description Delete an expense; only the creator may delete, shares cascade
// @Tags expenses
// @Produce json
// @Security BearerAuth
// @Param expenseId path string true "Expense ID"
// @Success 200 {object} map[string]bool
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /expenses/{expenseId} [delete]
func (s *ExpenseService) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	callerID, ok := r.Context().Value("userID").(string)
	if !ok || callerID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}
	expenseID := chi.URLParam(r, "expenseId")

	var creatorID string
	err := s.db.QueryRowContext(r.Context(),
		`SELECT creator_id FROM expenses WHERE id = $1`, expenseID).Scan(&creatorID)
	if err == sql.ErrNoRows {
		SendError(w, models.NewError(models.KindNotFound, "Expense not found"))
		return
	}
	if err != nil {
		SendError(w, models.WrapError(models.KindStore, "expense lookup failed", err))
		return
	}

	if creatorID != callerID {
		SendError(w, models.NewError(models.KindPermissionDenied, "Only the creator can delete an expense"))
		return
	}

	// Shares are removed by the store's ON DELETE CASCADE.
	if _, err := s.db.ExecContext(r.Context(), `DELETE FROM expenses WHERE id = $1`, expenseID); err != nil {
		SendError(w, models.WrapError(models.KindStore, "expense delete failed", err))
		return
	}

	slog.Info("expense deleted", "expense_id", expenseID, "creator_id", callerID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"deleted": true})
}
