package diff

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilupskalvis/branchd/internal/models"
)

func TestHTTPEngine_ThreeWayDiff(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/diff", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"conflicts": []*models.Conflict{
				{ObjectType: "Product", FieldName: "summary", Severity: models.SeverityLow},
			},
		})
	}))
	defer srv.Close()

	engine := NewHTTPEngine(srv.URL)
	conflicts, err := engine.ThreeWayDiff(context.Background(), Request{
		BranchName:     "feature-x",
		BaseCommitID:   "c1",
		SourceCommitID: "c2",
		TargetCommitID: "c3",
	})
	require.NoError(t, err)

	assert.Equal(t, "feature-x", got.BranchName)
	assert.Equal(t, "c1", got.BaseCommitID)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "Product", conflicts[0].ObjectType)
}

func TestHTTPEngine_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "engine overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	engine := NewHTTPEngine(srv.URL)
	_, err := engine.ThreeWayDiff(context.Background(), Request{BranchName: "feature-x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 503")
	assert.Contains(t, err.Error(), "engine overloaded")
}

func TestHTTPEngine_Unreachable(t *testing.T) {
	// Port 0 is never listening.
	engine := NewHTTPEngine("http://127.0.0.1:0")
	_, err := engine.ThreeWayDiff(context.Background(), Request{BranchName: "feature-x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreachable")
}

func TestUnavailable_AlwaysFails(t *testing.T) {
	_, err := Unavailable{}.ThreeWayDiff(context.Background(), Request{})
	assert.Error(t, err)
}
