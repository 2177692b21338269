package services

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/trektally/backend/internal/models"
)

// CategoryService serves the read-only expense category reference data.
type CategoryService struct {
	db *sql.DB
}

func NewCategoryService(db *sql.DB) *CategoryService {
	return &CategoryService{db: db}
}

// ListCategories lists all expense categories
// @Summary List expense categories
// @Tags categories
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{categories=[]models.ExpenseCategory}
// @Failure 500 {object} ErrorResponse
// @Router /categories [get]
func (s *CategoryService) ListCategories(w http.ResponseWriter, r *http.Request) {
	rows, err := s.db.QueryContext(r.Context(),
		`SELECT id, name, icon FROM expense_categories ORDER BY name`)
	if err != nil {
		slog.Error("category list failed", "error", err)
		SendError(w, models.WrapError(models.KindStore, "category lookup failed", err))
		return
	}
	defer rows.Close()

	categories := []models.ExpenseCategory{}
	for rows.Next() {
		var cat models.ExpenseCategory
		if err := rows.Scan(&cat.ID, &cat.Name, &cat.Icon); err != nil {
			SendError(w, models.WrapError(models.KindStore, "category scan failed", err))
			return
		}
		categories = append(categories, cat)
	}
	if err := rows.Err(); err != nil {
		SendError(w, models.WrapError(models.KindStore, "category lookup failed", err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"categories": categories})
}
