package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	dbcontracts "notifydecision/contracts/db"
	"notifydecision/internal/model"
)

type PreferenceService interface {
	Get(ctx context.Context, userID string) (model.Preferences, error)
	Set(ctx context.Context, userID string, subs []model.SubscriptionInput, dnd []model.DNDInput) (model.Preferences, error)
	Update(ctx context.Context, userID string, subs []model.SubscriptionPatch, dnd []model.DNDPatch) (model.Preferences, error)
}

type PreferencesHandler struct {
	service PreferenceService
	logger  *zap.Logger
}

func NewPreferencesHandler(service PreferenceService, logger *zap.Logger) *PreferencesHandler {
	return &PreferencesHandler{service: service, logger: logger}
}

// Wire shapes. DND windows accept either a single "day" or a "dnd_weekdays"
// list, and either ISO timestamps (start_date/end_date) or "HH:MM" clock
// strings (start_time/end_time).

type setNotificationPreference struct {
	NotificationType string   `json:"notification_type"`
	Enabled          *bool    `json:"enabled"`
	Channels         []string `json:"channels"`
}

type setDNDPreference struct {
	Name      string     `json:"name"`
	Day       *int       `json:"day"`
	Weekdays  []int      `json:"dnd_weekdays"`
	StartDate *time.Time `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`
	StartTime string     `json:"start_time"`
	EndTime   string     `json:"end_time"`
	AllDay    bool       `json:"all_day"`
}

type setPreferencesRequest struct {
	NotificationPreferences []setNotificationPreference `json:"notification_preferences"`
	DNDPreferences          []setDNDPreference          `json:"dnd_preferences"`
}

type updateNotificationPreference struct {
	NotificationType string   `json:"notification_type"`
	Enabled          *bool    `json:"enabled"`
	Channels         []string `json:"channels"`
}

type updateDNDPreference struct {
	ID        string     `json:"id"`
	Name      *string    `json:"name"`
	Day       *int       `json:"day"`
	StartDate *time.Time `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`
	StartTime *string    `json:"start_time"`
	EndTime   *string    `json:"end_time"`
	AllDay    *bool      `json:"all_day"`
}

type updatePreferencesRequest struct {
	NotificationPreferences []updateNotificationPreference `json:"notification_preferences"`
	DNDPreferences          []updateDNDPreference          `json:"dnd_preferences"`
}

// Get handles GET /api/v1/user-preferences/:userId
func (h *PreferencesHandler) Get(c *gin.Context) {
	userID := c.Param("userId")

	prefs, err := h.service.Get(c.Request.Context(), userID)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	if prefs.Empty() {
		respondError(c, http.StatusNotFound, "User preferences not found")
		return
	}
	respondOK(c, toReadModel(prefs))
}

// Set handles POST /api/v1/user-preferences/:userId
func (h *PreferencesHandler) Set(c *gin.Context) {
	userID := c.Param("userId")

	var req setPreferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	subs := make([]model.SubscriptionInput, 0, len(req.NotificationPreferences))
	for _, p := range req.NotificationPreferences {
		if p.Enabled == nil {
			respondServiceError(c, h.logger, fmt.Errorf("%w: enabled is required", model.ErrInvalidRequest))
			return
		}
		subs = append(subs, model.SubscriptionInput{
			NotificationType: p.NotificationType,
			Enabled:          *p.Enabled,
			Channels:         p.Channels,
		})
	}

	dnd := make([]model.DNDInput, 0, len(req.DNDPreferences))
	for _, p := range req.DNDPreferences {
		in, err := p.toInput()
		if err != nil {
			respondServiceError(c, h.logger, err)
			return
		}
		dnd = append(dnd, in)
	}

	written, err := h.service.Set(c.Request.Context(), userID, subs, dnd)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	respondOK(c, toReadModel(written))
}

// Update handles PUT /api/v1/user-preferences/:userId
func (h *PreferencesHandler) Update(c *gin.Context) {
	userID := c.Param("userId")

	var req updatePreferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	subs := make([]model.SubscriptionPatch, 0, len(req.NotificationPreferences))
	for _, p := range req.NotificationPreferences {
		subs = append(subs, model.SubscriptionPatch{
			NotificationType: p.NotificationType,
			Enabled:          p.Enabled,
			Channels:         p.Channels,
		})
	}

	dnd := make([]model.DNDPatch, 0, len(req.DNDPreferences))
	for _, p := range req.DNDPreferences {
		patch, err := p.toPatch()
		if err != nil {
			respondServiceError(c, h.logger, err)
			return
		}
		dnd = append(dnd, patch)
	}

	updated, err := h.service.Update(c.Request.Context(), userID, subs, dnd)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	respondOK(c, toReadModel(updated))
}

func (p setDNDPreference) toInput() (model.DNDInput, error) {
	days := append([]int(nil), p.Weekdays...)
	if p.Day != nil {
		days = append(days, *p.Day)
	}

	start, err := pickTime(p.StartDate, p.StartTime)
	if err != nil {
		return model.DNDInput{}, err
	}
	end, err := pickTime(p.EndDate, p.EndTime)
	if err != nil {
		return model.DNDInput{}, err
	}

	return model.DNDInput{
		Name:   p.Name,
		Days:   days,
		Start:  start,
		End:    end,
		AllDay: p.AllDay,
	}, nil
}

func (p updateDNDPreference) toPatch() (model.DNDPatch, error) {
	var startClock, endClock string
	if p.StartTime != nil {
		startClock = *p.StartTime
	}
	if p.EndTime != nil {
		endClock = *p.EndTime
	}

	start, err := pickTime(p.StartDate, startClock)
	if err != nil {
		return model.DNDPatch{}, err
	}
	end, err := pickTime(p.EndDate, endClock)
	if err != nil {
		return model.DNDPatch{}, err
	}

	return model.DNDPatch{
		ID:     p.ID,
		Name:   p.Name,
		Day:    p.Day,
		Start:  start,
		End:    end,
		AllDay: p.AllDay,
	}, nil
}

// pickTime prefers the timestamp and falls back to an "HH:MM" clock string.
func pickTime(ts *time.Time, clock string) (*time.Time, error) {
	if ts != nil {
		return ts, nil
	}
	if clock == "" {
		return nil, nil
	}
	hhmm, err := model.ParseClock(clock)
	if err != nil {
		return nil, err
	}
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidRequest, err)
	}
	return &t, nil
}

func toReadModel(p model.Preferences) dbcontracts.UserPreferences {
	out := dbcontracts.UserPreferences{
		UserID:                  p.UserID,
		NotificationPreferences: make([]dbcontracts.NotificationPreference, 0, len(p.Subscriptions)),
		DNDPreferences:          make([]dbcontracts.DNDPreference, 0, len(p.DNDWindows)),
	}
	for _, s := range p.Subscriptions {
		channels := s.Channels
		if channels == nil {
			channels = []string{}
		}
		out.NotificationPreferences = append(out.NotificationPreferences, dbcontracts.NotificationPreference{
			NotificationType: s.NotificationType,
			Enabled:          s.Enabled,
			Channels:         channels,
			CreatedAt:        s.CreatedAt,
			UpdatedAt:        s.UpdatedAt,
		})
	}
	for _, w := range p.DNDWindows {
		out.DNDPreferences = append(out.DNDPreferences, dbcontracts.DNDPreference{
			ID:        w.ID,
			Name:      w.Name,
			Day:       w.Day,
			StartTime: w.StartTime,
			EndTime:   w.EndTime,
			AllDay:    w.AllDay,
			CreatedAt: w.CreatedAt,
			UpdatedAt: w.UpdatedAt,
		})
	}
	return out
}
