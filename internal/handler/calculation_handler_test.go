package handler_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/portal-resilience-api/internal/dto"
	"github.com/noah-isme/portal-resilience-api/internal/handler"
	"github.com/noah-isme/portal-resilience-api/internal/service"
)

type mockCalculationService struct {
	saved []dto.CalculationCreateRequest
	err   error
}

func (m *mockCalculationService) Save(_ context.Context, userID string, payload dto.CalculationCreateRequest) (dto.CalculationResponse, error) {
	if m.err != nil {
		return dto.CalculationResponse{}, m.err
	}
	m.saved = append(m.saved, payload)
	return dto.CalculationResponse{ID: "calc-1", UserID: userID, Input: payload.Input, Results: payload.Results, Version: "1.2.0"}, nil
}

func (m *mockCalculationService) List(_ context.Context, userID string, _ int) ([]dto.CalculationResponse, error) {
	if m.err != nil {
		return nil, m.err
	}
	return []dto.CalculationResponse{{ID: "calc-1", UserID: userID, Version: "1.2.0"}}, nil
}

func TestCalculationHandler_Create(t *testing.T) {
	svc := &mockCalculationService{}
	app := fiber.New()
	handler.NewCalculationHandler(svc, zerolog.New(io.Discard)).Register(app.Group("/api/v1", asUser("user-1")))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/calculations", strings.NewReader(`{"input":{"seats":40},"results":{"roi":1.8}}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var body struct {
		Data dto.CalculationResponse `json:"data"`
	}
	decodeResponse(t, resp, &body)
	require.Equal(t, "1.2.0", body.Data.Version)
	require.Equal(t, "user-1", body.Data.UserID)
	require.Len(t, svc.saved, 1)
}

func TestCalculationHandler_ListBackendUnavailable(t *testing.T) {
	svc := &mockCalculationService{err: service.ErrBackendUnavailable}
	app := fiber.New()
	handler.NewCalculationHandler(svc, zerolog.New(io.Discard)).Register(app.Group("/api/v1", asUser("user-1")))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/calculations", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

	var body envelope
	decodeResponse(t, resp, &body)
	require.Equal(t, "backend_unavailable", body.Code)
}
