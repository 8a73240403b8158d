package storage

import (
	"context"
	"errors"
	"testing"

	"neurofault/internal/model"
)

func TestMemoryStoreCampaignRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	exerciseCampaigns(t, store)
}

func TestMemoryStoreFaultRunRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	exerciseFaultRuns(t, store)
}

func TestMemoryStoreCopiesCounts(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	run := testFaultRun("c1", "VTh_StuckAt1_4_2", [][]int{{1, 2}})
	if err := store.SaveFaultRun(ctx, run); err != nil {
		t.Fatalf("save run: %v", err)
	}
	run.Counts[0][0] = 99

	loaded, _, err := store.GetFaultRun(ctx, "c1", run.Key)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if loaded.Counts[0][0] != 1 {
		t.Fatalf("stored counts alias caller slice: %v", loaded.Counts)
	}
}

func TestMemoryStoreRequiresInit(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.ListCampaigns(context.Background()); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}

// exerciseCampaigns checks save, get, ordering and delete against any Store.
func exerciseCampaigns(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	older := testCampaign("c-old", "2026-01-01T00:00:00Z")
	newer := testCampaign("c-new", "2026-02-01T00:00:00Z")
	for _, c := range []model.CampaignRecord{older, newer} {
		if err := store.SaveCampaign(ctx, c); err != nil {
			t.Fatalf("save campaign %s: %v", c.ID, err)
		}
	}

	loaded, ok, err := store.GetCampaign(ctx, "c-old")
	if err != nil {
		t.Fatalf("get campaign: %v", err)
	}
	if !ok || loaded.Seed != older.Seed || len(loaded.RunKeys) != 2 {
		t.Fatalf("unexpected campaign: ok=%t %+v", ok, loaded)
	}

	campaigns, err := store.ListCampaigns(ctx)
	if err != nil {
		t.Fatalf("list campaigns: %v", err)
	}
	if len(campaigns) != 2 || campaigns[0].ID != "c-new" {
		t.Fatalf("expected newest campaign first: %+v", campaigns)
	}

	if err := store.SaveFaultRun(ctx, testFaultRun("c-old", "NoFault_None_0", nil)); err != nil {
		t.Fatalf("save run: %v", err)
	}
	if err := store.DeleteCampaign(ctx, "c-old"); err != nil {
		t.Fatalf("delete campaign: %v", err)
	}
	if _, ok, err := store.GetCampaign(ctx, "c-old"); err != nil || ok {
		t.Fatalf("expected deleted campaign: ok=%t err=%v", ok, err)
	}
	runs, err := store.ListFaultRuns(ctx, "c-old")
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("expected runs removed with campaign: %+v", runs)
	}
}

func exerciseFaultRuns(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	runs := []model.FaultRunRecord{
		testFaultRun("c1", "VTh_StuckAt1_4_2", [][]int{{0, 3}, {1, 1}}),
		testFaultRun("c1", "NoFault_None_0", [][]int{{2, 2}, {1, 0}}),
		testFaultRun("c2", "Tau_StuckAt0_1_0", nil),
	}
	for _, r := range runs {
		if err := store.SaveFaultRun(ctx, r); err != nil {
			t.Fatalf("save run %s: %v", r.Key, err)
		}
	}

	loaded, ok, err := store.GetFaultRun(ctx, "c1", "VTh_StuckAt1_4_2")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if !ok || len(loaded.Counts) != 2 || loaded.Counts[0][1] != 3 {
		t.Fatalf("unexpected run: ok=%t %+v", ok, loaded)
	}
	if _, ok, err := store.GetFaultRun(ctx, "c1", "missing"); err != nil || ok {
		t.Fatalf("expected missing run: ok=%t err=%v", ok, err)
	}

	listed, err := store.ListFaultRuns(ctx, "c1")
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(listed) != 2 || listed[0].Key != "NoFault_None_0" {
		t.Fatalf("expected runs ordered by key: %+v", listed)
	}

	updated := testFaultRun("c1", "NoFault_None_0", [][]int{{5, 5}})
	updated.Skipped = true
	if err := store.SaveFaultRun(ctx, updated); err != nil {
		t.Fatalf("overwrite run: %v", err)
	}
	loaded, _, err = store.GetFaultRun(ctx, "c1", "NoFault_None_0")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if !loaded.Skipped || loaded.Counts[0][0] != 5 {
		t.Fatalf("expected overwritten run: %+v", loaded)
	}
}

func testCampaign(id, created string) model.CampaignRecord {
	return model.CampaignRecord{
		VersionedRecord: Versioned(),
		ID:              id,
		CreatedAtUTC:    created,
		Seed:            17,
		Neurons:         3,
		Cycles:          2,
		Components:      []string{"VTh"},
		Failures:        []string{"StuckAt1"},
		RunKeys:         []string{"NoFault_None_0", "VTh_StuckAt1_4_2"},
	}
}

func testFaultRun(campaignID, key string, counts [][]int) model.FaultRunRecord {
	total := 0
	for _, c := range counts {
		for _, n := range c {
			total += n
		}
	}
	return model.FaultRunRecord{
		VersionedRecord: Versioned(),
		CampaignID:      campaignID,
		Key:             key,
		Counts:          counts,
		TotalSpikes:     total,
	}
}
