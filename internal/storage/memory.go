package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"neurofault/internal/model"
)

var ErrNotInitialized = errors.New("store is not initialized")

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	campaigns   map[string]model.CampaignRecord
	runs        map[string]map[string]model.FaultRunRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.campaigns = make(map[string]model.CampaignRecord)
	s.runs = make(map[string]map[string]model.FaultRunRecord)
	return nil
}

func (s *MemoryStore) SaveCampaign(_ context.Context, campaign model.CampaignRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	campaign.Components = append([]string(nil), campaign.Components...)
	campaign.Failures = append([]string(nil), campaign.Failures...)
	campaign.RunKeys = append([]string(nil), campaign.RunKeys...)
	s.campaigns[campaign.ID] = campaign
	return nil
}

func (s *MemoryStore) GetCampaign(_ context.Context, id string) (model.CampaignRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return model.CampaignRecord{}, false, ErrNotInitialized
	}
	campaign, ok := s.campaigns[id]
	return campaign, ok, nil
}

// ListCampaigns returns campaigns newest first.
func (s *MemoryStore) ListCampaigns(_ context.Context) ([]model.CampaignRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, ErrNotInitialized
	}
	out := make([]model.CampaignRecord, 0, len(s.campaigns))
	for _, c := range s.campaigns {
		out = append(out, c)
	}
	sortCampaigns(out)
	return out, nil
}

func (s *MemoryStore) SaveFaultRun(_ context.Context, run model.FaultRunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	byKey, ok := s.runs[run.CampaignID]
	if !ok {
		byKey = make(map[string]model.FaultRunRecord)
		s.runs[run.CampaignID] = byKey
	}
	run.Counts = copyCounts(run.Counts)
	byKey[run.Key] = run
	return nil
}

func (s *MemoryStore) GetFaultRun(_ context.Context, campaignID, key string) (model.FaultRunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return model.FaultRunRecord{}, false, ErrNotInitialized
	}
	run, ok := s.runs[campaignID][key]
	return run, ok, nil
}

// ListFaultRuns returns a campaign's runs ordered by key.
func (s *MemoryStore) ListFaultRuns(_ context.Context, campaignID string) ([]model.FaultRunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, ErrNotInitialized
	}
	byKey := s.runs[campaignID]
	out := make([]model.FaultRunRecord, 0, len(byKey))
	for _, r := range byKey {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *MemoryStore) DeleteCampaign(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	delete(s.campaigns, id)
	delete(s.runs, id)
	return nil
}

func sortCampaigns(campaigns []model.CampaignRecord) {
	sort.Slice(campaigns, func(i, j int) bool {
		if campaigns[i].CreatedAtUTC != campaigns[j].CreatedAtUTC {
			return campaigns[i].CreatedAtUTC > campaigns[j].CreatedAtUTC
		}
		return campaigns[i].ID < campaigns[j].ID
	})
}

func copyCounts(counts [][]int) [][]int {
	if counts == nil {
		return nil
	}
	out := make([][]int, len(counts))
	for i, row := range counts {
		out[i] = append([]int(nil), row...)
	}
	return out
}
