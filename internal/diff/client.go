package diff

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kilupskalvis/branchd/internal/models"
)

// collaboratorTimeout bounds every diff engine call. The orchestrator never
// holds a branch mutation open across this call.
const collaboratorTimeout = 5 * time.Second

// HTTPEngine calls a remote diff engine over HTTP.
type HTTPEngine struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPEngine creates a diff engine client for the given base URL.
func NewHTTPEngine(baseURL string) *HTTPEngine {
	return &HTTPEngine{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: collaboratorTimeout},
	}
}

// diffResponse is the wire shape returned by the engine.
type diffResponse struct {
	Conflicts []*models.Conflict `json:"conflicts"`
}

// ThreeWayDiff posts the commit triple and decodes the conflict list.
func (e *HTTPEngine) ThreeWayDiff(ctx context.Context, req Request) ([]*models.Conflict, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal diff request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/v1/diff", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create diff request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("diff engine unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("diff engine returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var decoded diffResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode diff response: %w", err)
	}

	return decoded.Conflicts, nil
}
