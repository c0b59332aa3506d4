package schema

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateBackupSnapshotAcceptsWellFormedDocument(t *testing.T) {
	document := map[string]interface{}{
		"userId":              "user-1",
		"timestamp":           "2024-05-20T10:00:00Z",
		"version":             "1.2.0",
		"collectionsBackedUp": []interface{}{"activities"},
		"data": map[string]interface{}{
			"activities": []interface{}{
				map[string]interface{}{"id": "a1", "fields": map[string]interface{}{"type": "login"}},
			},
		},
	}

	require.NoError(t, ValidateBackupSnapshot(document))
}

func TestValidateBackupSnapshotRejectsMissingUser(t *testing.T) {
	document := map[string]interface{}{
		"userId":              "",
		"timestamp":           "2024-05-20T10:00:00Z",
		"version":             "1.2.0",
		"collectionsBackedUp": []interface{}{},
		"data":                map[string]interface{}{},
	}

	require.Error(t, ValidateBackupSnapshot(document))
}

func TestValidateBackupSnapshotRejectsEmptyCollection(t *testing.T) {
	document := map[string]interface{}{
		"userId":              "user-1",
		"timestamp":           "2024-05-20T10:00:00Z",
		"version":             "1.2.0",
		"collectionsBackedUp": []interface{}{"documents"},
		"data": map[string]interface{}{
			"documents": []interface{}{},
		},
	}

	require.Error(t, ValidateBackupSnapshot(document))
}
