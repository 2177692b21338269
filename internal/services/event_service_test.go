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
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"

	"github.com/trektally/backend/internal/models"
)

func TestEventService_ListEvents(t *testing.T) {
	listQuery := "SELECT id, name, location, start_date, capacity, created_at"
	start := time.Date(2025, 12, 20, 0, 0, 0, 0, time.UTC)

	t.Run("participant count served from cache", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		redisClient, redisMock := redismock.NewClientMock()
		service := NewEventService(db, redisClient, testAppConfig())

		mock.ExpectQuery(listQuery).
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "name", "location", "start_date", "capacity", "created_at"}).
				AddRow("trek1", "Kedarkantha Winter Trek", "Uttarakhand", start, 20, start))
		redisMock.ExpectGet("event:participants:trek1").SetVal("12")

		req := authedRequest("GET", "/events", nil, "userA")
		w := httptest.NewRecorder()
		service.ListEvents(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Events []models.Event `json:"events"`
		}
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Len(t, resp.Events, 1)
		assert.Equal(t, 12, resp.Events[0].ParticipantCount)

		// The cache hit must keep the COUNT query off the store.
		assert.NoError(t, mock.ExpectationsWereMet())
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})

	t.Run("cache miss counts and backfills", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		redisClient, redisMock := redismock.NewClientMock()
		cfg := testAppConfig()
		service := NewEventService(db, redisClient, cfg)

		mock.ExpectQuery(listQuery).
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "name", "location", "start_date", "capacity", "created_at"}).
				AddRow("trek1", "Kedarkantha Winter Trek", "Uttarakhand", start, 20, start))
		redisMock.ExpectGet("event:participants:trek1").RedisNil()
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM registrations WHERE event_id = $1`)).
			WithArgs("trek1").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))
		redisMock.ExpectSet("event:participants:trek1", 7, cfg.ParticipantCacheTTL).SetVal("OK")

		req := authedRequest("GET", "/events", nil, "userA")
		w := httptest.NewRecorder()
		service.ListEvents(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Events []models.Event `json:"events"`
		}
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 7, resp.Events[0].ParticipantCount)

		assert.NoError(t, mock.ExpectationsWereMet())
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})

	t.Run("works without redis", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		service := NewEventService(db, nil, testAppConfig())

		mock.ExpectQuery(listQuery).
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "name", "location", "start_date", "capacity", "created_at"}).
				AddRow("trek1", "Kedarkantha Winter Trek", "Uttarakhand", start, 20, start))
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM registrations WHERE event_id = $1`)).
			WithArgs("trek1").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

		req := authedRequest("GET", "/events", nil, "userA")
		w := httptest.NewRecorder()
		service.ListEvents(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestEventService_Register(t *testing.T) {
	newRouter := func(service *EventService) *chi.Mux {
		r := chi.NewRouter()
		r.Post("/events/{eventId}/registrations", service.Register)
		return r
	}

	capacityQuery := regexp.QuoteMeta(`SELECT capacity FROM events WHERE id = $1`)

	t.Run("event not found", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		service := NewEventService(db, nil, testAppConfig())

		mock.ExpectQuery(capacityQuery).
			WithArgs("trek1").
			WillReturnRows(sqlmock.NewRows([]string{"capacity"}))

		w := httptest.NewRecorder()
		newRouter(service).ServeHTTP(w, authedRequest("POST", "/events/trek1/registrations", nil, "userA"))

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("event at capacity", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		service := NewEventService(db, nil, testAppConfig())

		mock.ExpectQuery(capacityQuery).
			WithArgs("trek1").
			WillReturnRows(sqlmock.NewRows([]string{"capacity"}).AddRow(2))
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM registrations WHERE event_id = $1`)).
			WithArgs("trek1").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

		w := httptest.NewRecorder()
		newRouter(service).ServeHTTP(w, authedRequest("POST", "/events/trek1/registrations", nil, "userA"))

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Contains(t, w.Body.String(), "Event is full")
	})

	t.Run("registration invalidates cached count", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		redisClient, redisMock := redismock.NewClientMock()
		service := NewEventService(db, redisClient, testAppConfig())

		mock.ExpectQuery(capacityQuery).
			WithArgs("trek1").
			WillReturnRows(sqlmock.NewRows([]string{"capacity"}).AddRow(0))
		mock.ExpectExec("INSERT INTO registrations").
			WithArgs(sqlmock.AnyArg(), "trek1", "userA").
			WillReturnResult(sqlmock.NewResult(0, 1))
		redisMock.ExpectDel("event:participants:trek1").SetVal(1)

		w := httptest.NewRecorder()
		newRouter(service).ServeHTTP(w, authedRequest("POST", "/events/trek1/registrations", nil, "userA"))

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})

	t.Run("repeat registration is idempotent", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		service := NewEventService(db, nil, testAppConfig())

		mock.ExpectQuery(capacityQuery).
			WithArgs("trek1").
			WillReturnRows(sqlmock.NewRows([]string{"capacity"}).AddRow(0))
		mock.ExpectExec("INSERT INTO registrations").
			WithArgs(sqlmock.AnyArg(), "trek1", "userA").
			WillReturnResult(sqlmock.NewResult(0, 0))

		w := httptest.NewRecorder()
		newRouter(service).ServeHTTP(w, authedRequest("POST", "/events/trek1/registrations", nil, "userA"))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"already_registered":true`)
	})
}

func TestEventService_Cancel(t *testing.T) {
	newRouter := func(service *EventService) *chi.Mux {
		r := chi.NewRouter()
		r.Delete("/events/{eventId}/registrations", service.Cancel)
		return r
	}

	t.Run("registration not found", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		service := NewEventService(db, nil, testAppConfig())

		mock.ExpectExec("DELETE FROM registrations").
			WithArgs("trek1", "userA").
			WillReturnResult(sqlmock.NewResult(0, 0))

		w := httptest.NewRecorder()
		newRouter(service).ServeHTTP(w, authedRequest("DELETE", "/events/trek1/registrations", nil, "userA"))

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("cancellation invalidates cached count", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		redisClient, redisMock := redismock.NewClientMock()
		service := NewEventService(db, redisClient, testAppConfig())

		mock.ExpectExec("DELETE FROM registrations").
			WithArgs("trek1", "userA").
			WillReturnResult(sqlmock.NewResult(0, 1))
		redisMock.ExpectDel("event:participants:trek1").SetVal(1)

		w := httptest.NewRecorder()
		newRouter(service).ServeHTTP(w, authedRequest("DELETE", "/events/trek1/registrations", nil, "userA"))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"cancelled":true`)
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})
}
