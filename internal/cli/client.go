package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kilupskalvis/branchd/internal/models"
)

// Client communicates with a running branchd daemon over its HTTP API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates an API client.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *Client) doJSON(ctx context.Context, method, path string, reqBody, respBody interface{}) error {
	var body io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if respBody != nil {
		if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// decodeError turns an API error response into a Go error.
func decodeError(resp *http.Response) error {
	var apiErr struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil || apiErr.Message == "" {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return fmt.Errorf("%s (%s)", apiErr.Message, apiErr.Error)
}

// CreateBranch calls POST /api/v1/branches.
func (c *Client) CreateBranch(ctx context.Context, name, headCommitID, baseCommitID string) (*models.Branch, error) {
	req := map[string]string{
		"name":           name,
		"head_commit_id": headCommitID,
		"base_commit_id": baseCommitID,
	}
	var branch models.Branch
	if err := c.doJSON(ctx, "POST", "/api/v1/branches", req, &branch); err != nil {
		return nil, fmt.Errorf("create branch: %w", err)
	}
	return &branch, nil
}

// ListBranches calls GET /api/v1/branches.
func (c *Client) ListBranches(ctx context.Context) ([]*models.Branch, error) {
	var branches []*models.Branch
	if err := c.doJSON(ctx, "GET", "/api/v1/branches", nil, &branches); err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	return branches, nil
}

// GetBranch calls GET /api/v1/branches/{name}.
func (c *Client) GetBranch(ctx context.Context, name string) (*models.Branch, error) {
	var branch models.Branch
	if err := c.doJSON(ctx, "GET", "/api/v1/branches/"+url.PathEscape(name), nil, &branch); err != nil {
		return nil, fmt.Errorf("get branch: %w", err)
	}
	return &branch, nil
}

// BeginIndexing calls POST /api/v1/branches/{name}/indexing/begin.
func (c *Client) BeginIndexing(ctx context.Context, name string, resourceTypes []string, acquiredBy string) error {
	req := map[string]interface{}{
		"resource_types": resourceTypes,
		"acquired_by":    acquiredBy,
	}
	if err := c.doJSON(ctx, "POST", "/api/v1/branches/"+url.PathEscape(name)+"/indexing/begin", req, nil); err != nil {
		return fmt.Errorf("begin indexing: %w", err)
	}
	return nil
}

// CompleteIndexing calls POST /api/v1/branches/{name}/indexing/complete.
func (c *Client) CompleteIndexing(ctx context.Context, name string, resourceTypes []string, completedBy string) (bool, error) {
	req := map[string]interface{}{
		"resource_types": resourceTypes,
		"completed_by":   completedBy,
	}
	var resp struct {
		Released bool `json:"released"`
	}
	if err := c.doJSON(ctx, "POST", "/api/v1/branches/"+url.PathEscape(name)+"/indexing/complete", req, &resp); err != nil {
		return false, fmt.Errorf("complete indexing: %w", err)
	}
	return resp.Released, nil
}

// RecoverBranch calls POST /api/v1/branches/{name}/recover.
func (c *Client) RecoverBranch(ctx context.Context, name, reason string) error {
	req := map[string]string{"reason": reason}
	if err := c.doJSON(ctx, "POST", "/api/v1/branches/"+url.PathEscape(name)+"/recover", req, nil); err != nil {
		return fmt.Errorf("recover branch: %w", err)
	}
	return nil
}

// GetLivePointer calls GET /api/v1/branches/{name}/live/{type}.
func (c *Client) GetLivePointer(ctx context.Context, name, indexType string) (*models.LivePointer, error) {
	var ptr models.LivePointer
	path := "/api/v1/branches/" + url.PathEscape(name) + "/live/" + url.PathEscape(indexType)
	if err := c.doJSON(ctx, "GET", path, nil, &ptr); err != nil {
		return nil, fmt.Errorf("get live pointer: %w", err)
	}
	return &ptr, nil
}

// StartShadowBuild calls POST /api/v1/shadows.
func (c *Client) StartShadowBuild(ctx context.Context, branchName, indexType string) (*models.ShadowIndex, error) {
	req := map[string]string{
		"branch_name": branchName,
		"index_type":  indexType,
	}
	var sh models.ShadowIndex
	if err := c.doJSON(ctx, "POST", "/api/v1/shadows", req, &sh); err != nil {
		return nil, fmt.Errorf("start shadow build: %w", err)
	}
	return &sh, nil
}

// ListShadows calls GET /api/v1/shadows, optionally filtered by branch.
func (c *Client) ListShadows(ctx context.Context, branchName string) ([]*models.ShadowIndex, error) {
	path := "/api/v1/shadows"
	if branchName != "" {
		path += "?branch=" + url.QueryEscape(branchName)
	}
	var shadows []*models.ShadowIndex
	if err := c.doJSON(ctx, "GET", path, nil, &shadows); err != nil {
		return nil, fmt.Errorf("list shadows: %w", err)
	}
	return shadows, nil
}

// GetShadow calls GET /api/v1/shadows/{id}.
func (c *Client) GetShadow(ctx context.Context, id string) (*models.ShadowIndex, error) {
	var sh models.ShadowIndex
	if err := c.doJSON(ctx, "GET", "/api/v1/shadows/"+url.PathEscape(id), nil, &sh); err != nil {
		return nil, fmt.Errorf("get shadow: %w", err)
	}
	return &sh, nil
}

// FailShadowBuild calls POST /api/v1/shadows/{id}/fail.
func (c *Client) FailShadowBuild(ctx context.Context, id, reason string) error {
	req := map[string]string{"reason": reason}
	if err := c.doJSON(ctx, "POST", "/api/v1/shadows/"+url.PathEscape(id)+"/fail", req, nil); err != nil {
		return fmt.Errorf("fail shadow build: %w", err)
	}
	return nil
}

// SwitchShadow calls POST /api/v1/shadows/{id}/switch. A declined switch is
// returned as a result, not an error.
func (c *Client) SwitchShadow(ctx context.Context, id string, req models.SwitchRequest) (*models.SwitchResult, error) {
	var body io.Reader
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	body = bytes.NewReader(data)

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/v1/shadows/"+url.PathEscape(id)+"/switch", body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	// 422 carries a failed SwitchResult body.
	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusUnprocessableEntity {
		return nil, fmt.Errorf("switch shadow: %w", decodeError(resp))
	}

	var result models.SwitchResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &result, nil
}

// PostEvent calls POST /api/v1/events.
func (c *Client) PostEvent(ctx context.Context, ev *models.IndexingEvent) error {
	if err := c.doJSON(ctx, "POST", "/api/v1/events", ev, nil); err != nil {
		return fmt.Errorf("post event: %w", err)
	}
	return nil
}

// EvaluateResponse is the decoded response from POST /api/v1/merge/evaluate.
type EvaluateResponse struct {
	Decision    models.MergeDecision           `json:"decision"`
	Resolutions []*models.ConflictResolution   `json:"resolutions"`
	Impact      *models.BusinessImpactAnalysis `json:"impact"`
	Assessment  *models.MergeRiskAssessment    `json:"assessment"`
}

// EvaluateMerge calls POST /api/v1/merge/evaluate.
func (c *Client) EvaluateMerge(ctx context.Context, conflicts []*models.Conflict) (*EvaluateResponse, error) {
	req := map[string]interface{}{"conflicts": conflicts}
	var resp EvaluateResponse
	if err := c.doJSON(ctx, "POST", "/api/v1/merge/evaluate", req, &resp); err != nil {
		return nil, fmt.Errorf("evaluate merge: %w", err)
	}
	return &resp, nil
}

// RecentAudit calls GET /api/v1/audit.
func (c *Client) RecentAudit(ctx context.Context, limit int) ([]*models.AuditRecord, error) {
	path := fmt.Sprintf("/api/v1/audit?limit=%d", limit)
	var records []*models.AuditRecord
	if err := c.doJSON(ctx, "GET", path, nil, &records); err != nil {
		return nil, fmt.Errorf("fetch audit records: %w", err)
	}
	return records, nil
}
