// Package index provides a client wrapper for the Weaviate-backed live
// index store. The control plane only reads from it: record counts and
// class existence for switch validation, plus backup snapshots before a
// pointer swap.
package index

import (
	"context"
	"fmt"
	"strings"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/backup"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
)

// Client wraps the Weaviate client with control-plane specific functionality.
type Client struct {
	client *weaviate.Client
	url    string
}

// NewClient creates a new Weaviate client.
func NewClient(url string) (*Client, error) {
	cfg := weaviate.Config{
		Host:   url,
		Scheme: "http",
	}

	if strings.HasPrefix(url, "http://") {
		cfg.Host = strings.TrimPrefix(url, "http://")
		cfg.Scheme = "http"
	} else if strings.HasPrefix(url, "https://") {
		cfg.Host = strings.TrimPrefix(url, "https://")
		cfg.Scheme = "https"
	}

	client, err := weaviate.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Weaviate client: %w", err)
	}

	return &Client{client: client, url: url}, nil
}

// Ping checks if Weaviate is reachable.
func (c *Client) Ping(ctx context.Context) error {
	live, err := c.client.Misc().LiveChecker().Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to Weaviate: %w", err)
	}
	if !live {
		return fmt.Errorf("weaviate is not live")
	}
	return nil
}

// ClassExists reports whether a class exists in the schema.
func (c *Client) ClassExists(ctx context.Context, className string) (bool, error) {
	exists, err := c.client.Schema().ClassExistenceChecker().WithClassName(className).Do(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to check class %s: %w", className, err)
	}
	return exists, nil
}

// RecordCount returns the number of objects in a class using an aggregate query.
func (c *Client) RecordCount(ctx context.Context, className string) (int64, error) {
	metaField := graphql.Field{
		Name: "meta",
		Fields: []graphql.Field{
			{Name: "count"},
		},
	}

	result, err := c.client.GraphQL().Aggregate().
		WithClassName(className).
		WithFields(metaField).
		Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get count for %s: %w", className, err)
	}

	data, ok := result.Data["Aggregate"].(map[string]interface{})
	if !ok {
		return 0, fmt.Errorf("unexpected aggregate response format")
	}

	classData, ok := data[className].([]interface{})
	if !ok || len(classData) == 0 {
		return 0, nil
	}

	first, ok := classData[0].(map[string]interface{})
	if !ok {
		return 0, nil
	}

	meta, ok := first["meta"].(map[string]interface{})
	if !ok {
		return 0, nil
	}

	count, ok := meta["count"].(float64)
	if !ok {
		return 0, nil
	}

	return int64(count), nil
}

// CreateSnapshot triggers a filesystem backup of the given classes and
// returns the backup id once the request is accepted.
func (c *Client) CreateSnapshot(ctx context.Context, backupID string, classNames []string) (string, error) {
	resp, err := c.client.Backup().Creator().
		WithBackend(backup.BACKEND_FILESYSTEM).
		WithBackupID(backupID).
		WithIncludeClassNames(classNames...).
		Do(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to create backup %s: %w", backupID, err)
	}

	return resp.ID, nil
}
