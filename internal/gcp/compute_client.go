package gcp

import (
	"context"
	"fmt"
	"strings"

	compute "cloud.google.com/go/compute/apiv1"
	computepb "cloud.google.com/go/compute/apiv1/computepb"
	"github.com/googleapis/gax-go/v2"
	"github.com/maxkimambo/qtask/internal/logger"
)

// InstanceOperations is the subset of instance management used by pipeline
// steps.
type InstanceOperations interface {
	StartInstance(ctx context.Context, ref InstanceRef) error
	StopInstance(ctx context.Context, ref InstanceRef) error
	GetInstance(ctx context.Context, ref InstanceRef) (*computepb.Instance, error)
	Close() error
}

// InstanceRef names a zonal instance.
type InstanceRef struct {
	Project string
	Zone    string
	Name    string
}

func (r InstanceRef) String() string {
	return fmt.Sprintf("%s/%s/%s", r.Project, ZoneName(r.Zone), r.Name)
}

func (r InstanceRef) fields() map[string]interface{} {
	return map[string]interface{}{
		"project":  r.Project,
		"zone":     ZoneName(r.Zone),
		"instance": r.Name,
	}
}

// ZoneName strips a zone URL down to its last segment.
func ZoneName(zone string) string {
	if i := strings.LastIndex(zone, "/"); i >= 0 {
		return zone[i+1:]
	}
	return zone
}

type operation interface {
	Name() string
	Wait(ctx context.Context, opts ...gax.CallOption) error
}

type instancesAPI interface {
	Get(ctx context.Context, req *computepb.GetInstanceRequest, opts ...gax.CallOption) (*computepb.Instance, error)
	Start(ctx context.Context, req *computepb.StartInstanceRequest, opts ...gax.CallOption) (operation, error)
	Stop(ctx context.Context, req *computepb.StopInstanceRequest, opts ...gax.CallOption) (operation, error)
}

type instancesClientAdapter struct {
	client *compute.InstancesClient
}

func (a instancesClientAdapter) Get(ctx context.Context, req *computepb.GetInstanceRequest, opts ...gax.CallOption) (*computepb.Instance, error) {
	return a.client.Get(ctx, req, opts...)
}

func (a instancesClientAdapter) Start(ctx context.Context, req *computepb.StartInstanceRequest, opts ...gax.CallOption) (operation, error) {
	op, err := a.client.Start(ctx, req, opts...)
	if err != nil {
		return nil, err
	}
	return op, nil
}

func (a instancesClientAdapter) Stop(ctx context.Context, req *computepb.StopInstanceRequest, opts ...gax.CallOption) (operation, error) {
	op, err := a.client.Stop(ctx, req, opts...)
	if err != nil {
		return nil, err
	}
	return op, nil
}

// ComputeClient manages instances through the Compute Engine API.
type ComputeClient struct {
	client  instancesAPI
	closeFn func() error
}

// NewComputeClient wraps an instances API. closeFn may be nil.
func NewComputeClient(client instancesAPI, closeFn func() error) *ComputeClient {
	return &ComputeClient{
		client:  client,
		closeFn: closeFn,
	}
}

func (cc *ComputeClient) StartInstance(ctx context.Context, ref InstanceRef) error {
	logFields := ref.fields()
	logger.Op.WithFields(logFields).Info("Starting instance")

	op, err := cc.client.Start(ctx, &computepb.StartInstanceRequest{
		Project:  ref.Project,
		Zone:     ZoneName(ref.Zone),
		Instance: ref.Name,
	})
	if err != nil {
		logger.Op.WithFields(logFields).WithError(err).Error("Failed to start instance")
		return fmt.Errorf("failed to start instance %s: %w", ref, err)
	}
	if err := cc.wait(ctx, op, logFields); err != nil {
		return fmt.Errorf("waiting for instance %s start operation failed: %w", ref, err)
	}

	logger.Op.WithFields(logFields).Info("Instance started successfully.")
	return nil
}

func (cc *ComputeClient) StopInstance(ctx context.Context, ref InstanceRef) error {
	logFields := ref.fields()
	logger.Op.WithFields(logFields).Info("Stopping instance")

	op, err := cc.client.Stop(ctx, &computepb.StopInstanceRequest{
		Project:  ref.Project,
		Zone:     ZoneName(ref.Zone),
		Instance: ref.Name,
	})
	if err != nil {
		logger.Op.WithFields(logFields).WithError(err).Error("Failed to initiate instance stop operation")
		return fmt.Errorf("failed to stop instance %s: %w", ref, err)
	}
	if err := cc.wait(ctx, op, logFields); err != nil {
		return fmt.Errorf("waiting for instance %s stop operation failed: %w", ref, err)
	}

	logger.Op.WithFields(logFields).Info("Instance stopped successfully.")
	return nil
}

func (cc *ComputeClient) wait(ctx context.Context, op operation, logFields map[string]interface{}) error {
	logger.Op.WithFields(logFields).Debugf("Waiting for operation %s to complete...", op.Name())
	opCtx, cancel := context.WithTimeout(ctx, defaultOpTimeout)
	defer cancel()
	if err := op.Wait(opCtx); err != nil {
		logger.Op.WithFields(logFields).WithError(err).Errorf("Waiting for operation %s failed", op.Name())
		return err
	}
	return nil
}

func (cc *ComputeClient) GetInstance(ctx context.Context, ref InstanceRef) (*computepb.Instance, error) {
	logger.Op.WithFields(ref.fields()).Debug("Getting instance details")

	instance, err := cc.client.Get(ctx, &computepb.GetInstanceRequest{
		Project:  ref.Project,
		Zone:     ZoneName(ref.Zone),
		Instance: ref.Name,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get instance %s: %w", ref, err)
	}
	return instance, nil
}

func (cc *ComputeClient) Close() error {
	if cc.closeFn == nil {
		return nil
	}
	return cc.closeFn()
}
