package storage

import (
	"context"

	"neurofault/internal/model"
)

// Store persists campaign summaries and their per-fault results.
type Store interface {
	Init(ctx context.Context) error
	SaveCampaign(ctx context.Context, campaign model.CampaignRecord) error
	GetCampaign(ctx context.Context, id string) (model.CampaignRecord, bool, error)
	ListCampaigns(ctx context.Context) ([]model.CampaignRecord, error)
	SaveFaultRun(ctx context.Context, run model.FaultRunRecord) error
	GetFaultRun(ctx context.Context, campaignID, key string) (model.FaultRunRecord, bool, error)
	ListFaultRuns(ctx context.Context, campaignID string) ([]model.FaultRunRecord, error)
	DeleteCampaign(ctx context.Context, id string) error
}
