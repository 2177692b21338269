package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/trektally/backend/internal/models"
)

func TestShareService_UpdateStatus(t *testing.T) {
	newRouter := func(service *ShareService) *chi.Mux {
		r := chi.NewRouter()
		r.Put("/shares/{shareId}/status", service.UpdateStatus)
		return r
	}

	lockQuery := regexp.QuoteMeta(`SELECT user_id, status FROM expense_shares WHERE id = $1 FOR UPDATE`)

	t.Run("invalid status value", func(t *testing.T) {
		db, _, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		service := NewShareService(db)

		body := []byte(`{"status":"settled"}`)
		w := httptest.NewRecorder()
		newRouter(service).ServeHTTP(w, authedRequest("PUT", "/shares/sh1/status", body, "userB"))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("share not found", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		service := NewShareService(db)

		mock.ExpectBegin()
		mock.ExpectQuery(lockQuery).
			WithArgs("sh1").
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "status"}))
		mock.ExpectRollback()

		body := []byte(`{"status":"accepted"}`)
		w := httptest.NewRecorder()
		newRouter(service).ServeHTTP(w, authedRequest("PUT", "/shares/sh1/status", body, "userB"))

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("only the debtor may transition", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		service := NewShareService(db)

		mock.ExpectBegin()
		mock.ExpectQuery(lockQuery).
			WithArgs("sh1").
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "status"}).AddRow("userB", "pending"))
		mock.ExpectRollback()

		body := []byte(`{"status":"accepted"}`)
		w := httptest.NewRecorder()
		newRouter(service).ServeHTTP(w, authedRequest("PUT", "/shares/sh1/status", body, "userC"))

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("illegal transition is rejected", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		service := NewShareService(db)

		mock.ExpectBegin()
		mock.ExpectQuery(lockQuery).
			WithArgs("sh1").
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "status"}).AddRow("userB", "paid"))
		mock.ExpectRollback()

		body := []byte(`{"status":"pending"}`)
		w := httptest.NewRecorder()
		newRouter(service).ServeHTTP(w, authedRequest("PUT", "/shares/sh1/status", body, "userB"))

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("marking paid records method and date", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		service := NewShareService(db)

		paidAt := time.Date(2025, 11, 3, 9, 30, 0, 0, time.UTC)

		mock.ExpectBegin()
		mock.ExpectQuery(lockQuery).
			WithArgs("sh1").
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "status"}).AddRow("userB", "accepted"))
		mock.ExpectQuery("UPDATE expense_shares").
			WithArgs(models.SharePaid, "UPI", "sh1", "userB").
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "expense_id", "user_id", "amount", "status", "payment_method", "payment_date"}).
				AddRow("sh1", "exp1", "userB", 450.0, "paid", "UPI", paidAt))
		mock.ExpectCommit()

		body := []byte(`{"status":"paid","paymentMethod":"UPI"}`)
		w := httptest.NewRecorder()
		newRouter(service).ServeHTTP(w, authedRequest("PUT", "/shares/sh1/status", body, "userB"))

		assert.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Success bool                `json:"success"`
			Share   models.ExpenseShare `json:"share"`
		}
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		assert.Equal(t, models.SharePaid, resp.Share.Status)
		assert.NotNil(t, resp.Share.PaymentMethod)
		assert.Equal(t, "UPI", *resp.Share.PaymentMethod)
		assert.NotNil(t, resp.Share.PaymentDate)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("marking paid defaults the payment method", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		service := NewShareService(db)

		mock.ExpectBegin()
		mock.ExpectQuery(lockQuery).
			WithArgs("sh1").
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "status"}).AddRow("userB", "pending"))
		mock.ExpectQuery("UPDATE expense_shares").
			WithArgs(models.SharePaid, defaultPaymentMethod, "sh1", "userB").
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "expense_id", "user_id", "amount", "status", "payment_method", "payment_date"}).
				AddRow("sh1", "exp1", "userB", 450.0, "paid", defaultPaymentMethod, time.Now()))
		mock.ExpectCommit()

		body := []byte(`{"status":"paid"}`)
		w := httptest.NewRecorder()
		newRouter(service).ServeHTTP(w, authedRequest("PUT", "/shares/sh1/status", body, "userB"))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("dispute does not touch payment fields", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		service := NewShareService(db)

		mock.ExpectBegin()
		mock.ExpectQuery(lockQuery).
			WithArgs("sh1").
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "status"}).AddRow("userB", "pending"))
		mock.ExpectQuery("UPDATE expense_shares").
			WithArgs(models.ShareDisputed, "sh1", "userB").
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "expense_id", "user_id", "amount", "status", "payment_method", "payment_date"}).
				AddRow("sh1", "exp1", "userB", 450.0, "disputed", nil, nil))
		mock.ExpectCommit()

		body := []byte(`{"status":"disputed"}`)
		w := httptest.NewRecorder()
		newRouter(service).ServeHTTP(w, authedRequest("PUT", "/shares/sh1/status", body, "userB"))

		assert.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Share models.ExpenseShare `json:"share"`
		}
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, models.ShareDisputed, resp.Share.Status)
		assert.Nil(t, resp.Share.PaymentMethod)
		assert.Nil(t, resp.Share.PaymentDate)

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
