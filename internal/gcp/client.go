package gcp

import (
	"context"
	"fmt"
	"time"

	compute "cloud.google.com/go/compute/apiv1"
	"github.com/maxkimambo/qtask/internal/logger"
	"google.golang.org/api/option"
)

const defaultOpTimeout = 10 * time.Minute

// NewClient connects to the Compute Engine instances API.
func NewClient(ctx context.Context, opts ...option.ClientOption) (*ComputeClient, error) {
	logger.Op.Debug("Initializing GCP Compute API client...")

	gceClient, err := compute.NewInstancesRESTClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create compute Instances (GCE) client: %w", err)
	}
	logger.Op.Debug("GCE client initialized.")

	return NewComputeClient(instancesClientAdapter{client: gceClient}, gceClient.Close), nil
}
