package service

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/portal-resilience-api/internal/dto"
	"github.com/noah-isme/portal-resilience-api/internal/models"
	"github.com/noah-isme/portal-resilience-api/internal/repository"
)

func TestCalculationServiceSaveStampsCurrentVersion(t *testing.T) {
	store := repository.NewMemoryRecordStore()
	recorder := &stubRecorder{}
	validate := validator.New(validator.WithRequiredStructEnabled())
	svc := NewCalculationService(repository.NewCalculationRepository(store), recorder, validate, testLogger())

	saved, err := svc.Save(context.Background(), "user-1", dto.CalculationCreateRequest{
		Input:    map[string]interface{}{"monthlyLeads": 250},
		Results:  map[string]interface{}{"roi": 3.2},
		Metadata: map[string]interface{}{"campaign": "q3"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, saved.ID)
	require.Equal(t, models.CurrentVersion().Version, saved.Version)
	require.Equal(t, "q3", saved.Metadata["campaign"].Str())

	listed, err := svc.List(context.Background(), "user-1", 0)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.Equal(t, saved.ID, listed[0].ID)

	require.Len(t, recorder.entries, 1)
	require.Equal(t, saved.ID, recorder.entries[0].metadata["calculationId"].Str())
}

func TestCalculationServiceValidation(t *testing.T) {
	store := newFaultyStore(repository.NewMemoryRecordStore())
	validate := validator.New(validator.WithRequiredStructEnabled())
	svc := NewCalculationService(repository.NewCalculationRepository(store), &stubRecorder{}, validate, testLogger())

	_, err := svc.Save(context.Background(), "", dto.CalculationCreateRequest{})
	require.ErrorIs(t, err, ErrMissingUser)

	_, err = svc.Save(context.Background(), "user-1", dto.CalculationCreateRequest{Results: map[string]interface{}{}})
	require.Error(t, err)

	_, err = svc.Save(context.Background(), "user-1", dto.CalculationCreateRequest{
		Input:    map[string]interface{}{},
		Results:  map[string]interface{}{},
		Metadata: map[string]interface{}{"bad": []interface{}{1}},
	})
	require.ErrorIs(t, err, ErrInvalidMetadata)
	require.Zero(t, store.writeCount())

	store.failAdd[models.CollectionCalculations] = true
	_, err = svc.Save(context.Background(), "user-1", dto.CalculationCreateRequest{
		Input:   map[string]interface{}{},
		Results: map[string]interface{}{},
	})
	require.ErrorIs(t, err, ErrBackendUnavailable)
}
