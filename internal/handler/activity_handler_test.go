package handler_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/portal-resilience-api/internal/dto"
	"github.com/noah-isme/portal-resilience-api/internal/handler"
	"github.com/noah-isme/portal-resilience-api/internal/models"
)

type mockActivityService struct {
	created   []dto.ActivityCreateRequest
	lastLimit int
	recent    dto.ActivityListResponse
	createErr error
}

func (m *mockActivityService) Record(context.Context, string, models.ActivityType, string, models.Metadata) error {
	return nil
}

func (m *mockActivityService) Create(_ context.Context, _ string, payload dto.ActivityCreateRequest) error {
	m.created = append(m.created, payload)
	return m.createErr
}

func (m *mockActivityService) RecentActivities(_ context.Context, _ string, limit int) dto.ActivityListResponse {
	m.lastLimit = limit
	return m.recent
}

func newActivityApp(svc *mockActivityService) *fiber.App {
	app := fiber.New()
	handler.NewActivityHandler(svc, validator.New(), zerolog.New(io.Discard)).Register(app.Group("/api/v1", asUser("user-1")))
	return app
}

func TestActivityHandler_List(t *testing.T) {
	svc := &mockActivityService{recent: dto.ActivityListResponse{
		Items:    []dto.ActivityResponse{{ID: "a1", UserID: "user-1", Type: "login", Message: "Signed in", Timestamp: time.Now().UTC()}},
		CacheHit: true,
	}}
	app := newActivityApp(svc)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/activities?limit=3", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		Data dto.ActivityListResponse `json:"data"`
	}
	decodeResponse(t, resp, &body)
	require.Len(t, body.Data.Items, 1)
	require.True(t, body.Data.CacheHit)
	require.Equal(t, 3, svc.lastLimit)
}

func TestActivityHandler_CreateAcceptedEvenWhenStoreFails(t *testing.T) {
	svc := &mockActivityService{createErr: errors.New("store down")}
	app := newActivityApp(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/activities", strings.NewReader(`{"type":"document","message":"Uploaded deck","metadata":{"pages":12}}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusAccepted, resp.StatusCode)
	require.Len(t, svc.created, 1)
	require.Equal(t, "document", svc.created[0].Type)
}

func TestActivityHandler_CreateRejectsUnknownType(t *testing.T) {
	svc := &mockActivityService{}
	app := newActivityApp(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/activities", strings.NewReader(`{"type":"payment","message":"Paid"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	require.Empty(t, svc.created)
}
