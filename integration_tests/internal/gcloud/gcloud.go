package gcloud

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

type Instance struct {
	Name   string `json:"name"`
	Zone   string `json:"zone"`
	Status string `json:"status"`
}

// Client reads instance state through the gcloud CLI, independent of the
// API client under test.
type Client struct {
	projectID string
}

func NewClient(projectID string) *Client {
	return &Client{
		projectID: projectID,
	}
}

func (c *Client) GetInstance(ctx context.Context, zone, instanceName string) (*Instance, error) {
	cmd := exec.CommandContext(ctx, "gcloud", "compute", "instances", "describe",
		instanceName,
		"--zone", zone,
		"--project", c.projectID,
		"--format", "json")

	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}

	var instance Instance
	if err := json.Unmarshal(output, &instance); err != nil {
		return nil, fmt.Errorf("failed to parse instance JSON: %w", err)
	}
	return &instance, nil
}

func (c *Client) InstanceStatus(ctx context.Context, zone, instanceName string) (string, error) {
	instance, err := c.GetInstance(ctx, zone, instanceName)
	if err != nil {
		return "", err
	}
	return strings.ToUpper(instance.Status), nil
}
