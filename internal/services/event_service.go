package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/trektally/backend/internal/config"
	"github.com/trektally/backend/internal/models"
)

// EventService lists events and manages trek registrations. Participant
// counts are served from a Redis TTL cache invalidated on the registration
// write path; the server works without Redis at the cost of a COUNT query
// per event.
type EventService struct {
	db       *sql.DB
	redis    *redis.Client
	cacheTTL time.Duration
}

func NewEventService(db *sql.DB, redisClient *redis.Client, cfg *config.AppConfig) *EventService {
	return &EventService{
		db:       db,
		redis:    redisClient,
		cacheTTL: cfg.ParticipantCacheTTL,
	}
}

func participantCountKey(eventID string) string {
	return fmt.Sprintf("event:participants:%s", eventID)
}

// ListEvents lists events with participant counts
// @Summary List events
// @Tags events
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{events=[]models.Event}
// @Failure 500 {object} ErrorResponse
// @Router /events [get]
func (s *EventService) ListEvents(w http.ResponseWriter, r *http.Request) {
	rows, err := s.db.QueryContext(r.Context(), `
		SELECT id, name, location, start_date, capacity, created_at
		FROM events
		ORDER BY start_date`)
	if err != nil {
		slog.Error("event list failed", "error", err)
		SendError(w, models.WrapError(models.KindStore, "event lookup failed", err))
		return
	}
	defer rows.Close()

	events := []models.Event{}
	for rows.Next() {
		var ev models.Event
		if err := rows.Scan(&ev.ID, &ev.Name, &ev.Location, &ev.StartDate, &ev.Capacity, &ev.CreatedAt); err != nil {
			SendError(w, models.WrapError(models.KindStore, "event scan failed", err))
			return
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		SendError(w, models.WrapError(models.KindStore, "event lookup failed", err))
		return
	}

	for i := range events {
		count, err := s.participantCount(r.Context(), events[i].ID)
		if err != nil {
			SendError(w, err)
			return
		}
		events[i].ParticipantCount = count
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"events": events})
}

// participantCount returns the registration count for one event, cached in
// Redis for cacheTTL. Cache write failures are logged, not fatal.
func (s *EventService) participantCount(ctx context.Context, eventID string) (int, error) {
	key := participantCountKey(eventID)

	if s.redis != nil {
		if count, err := s.redis.Get(ctx, key).Int(); err == nil {
			return count, nil
		}
	}

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM registrations WHERE event_id = $1`, eventID).Scan(&count)
	if err != nil {
		return 0, models.WrapError(models.KindStore, "participant count failed", err)
	}

	if s.redis != nil {
		if err := s.redis.Set(ctx, key, count, s.cacheTTL).Err(); err != nil {
			slog.Warn("participant count cache write failed", "event_id", eventID, "error", err)
		}
	}
	return count, nil
}

// invalidateCount drops the cached participant count after a registration
// write.
func (s *EventService) invalidateCount(ctx context.Context, eventID string) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, participantCountKey(eventID)).Err(); err != nil {
		slog.Warn("participant count invalidation failed", "event_id", eventID, "error", err)
	}
}

// Register registers the caller for an event
// @Summary Register for an event
// @Description Register the authenticated user; repeat registrations are answered idempotently
// @Tags events
// @Produce json
// @Security BearerAuth
// @Param eventId path string true "Event ID"
// @Success 201 {object} map[string]bool
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /events/{eventId}/registrations [post]
func (s *EventService) Register(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}
	eventID := chi.URLParam(r, "eventId")

	var capacity int
	err := s.db.QueryRowContext(r.Context(),
		`SELECT capacity FROM events WHERE id = $1`, eventID).Scan(&capacity)
	if err == sql.ErrNoRows {
		SendError(w, models.NewError(models.KindNotFound, "Event not found"))
		return
	}
	if err != nil {
		SendError(w, models.WrapError(models.KindStore, "event lookup failed", err))
		return
	}

	if capacity > 0 {
		count, err := s.participantCount(r.Context(), eventID)
		if err != nil {
			SendError(w, err)
			return
		}
		if count >= capacity {
			SendError(w, models.NewError(models.KindConflict, "Event is full"))
			return
		}
	}

	// The unique (event_id, user_id) constraint absorbs double-taps from the
	// client; a repeat registration is a no-op answered idempotently.
	res, err := s.db.ExecContext(r.Context(), `
		INSERT INTO registrations (id, event_id, user_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (event_id, user_id) DO NOTHING`,
		uuid.NewString(), eventID, userID)
	if err != nil {
		SendError(w, models.WrapError(models.KindStore, "registration failed", err))
		return
	}

	inserted, _ := res.RowsAffected()
	if inserted == 0 {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]bool{"registered": true, "already_registered": true})
		return
	}

	s.invalidateCount(r.Context(), eventID)
	slog.Info("registration created", "event_id", eventID, "user_id", userID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]bool{"registered": true})
}

// Cancel removes the caller's registration
// @Summary Cancel a registration
// @Tags events
// @Produce json
// @Security BearerAuth
// @Param eventId path string true "Event ID"
// @Success 200 {object} map[string]bool
// @Failure 404 {object} ErrorResponse
// @Router /events/{eventId}/registrations [delete]
func (s *EventService) Cancel(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}
	eventID := chi.URLParam(r, "eventId")

	res, err := s.db.ExecContext(r.Context(),
		`DELETE FROM registrations WHERE event_id = $1 AND user_id = $2`, eventID, userID)
	if err != nil {
		SendError(w, models.WrapError(models.KindStore, "registration delete failed", err))
		return
	}
	deleted, _ := res.RowsAffected()
	if deleted == 0 {
		SendError(w, models.NewError(models.KindNotFound, "Registration not found"))
		return
	}

	s.invalidateCount(r.Context(), eventID)
	slog.Info("registration cancelled", "event_id", eventID, "user_id", userID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"cancelled": true})
}
