package model

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// CampaignRecord summarises one fault-injection campaign.
type CampaignRecord struct {
	VersionedRecord
	ID            string   `json:"id"`
	CreatedAtUTC  string   `json:"created_at_utc"`
	Seed          int64    `json:"seed"`
	Inputs        int      `json:"inputs"`
	Neurons       int      `json:"neurons"`
	Instants      int      `json:"instants"`
	Cycles        int      `json:"cycles"`
	BitRange      int      `json:"bit_range"`
	TransientMode string   `json:"transient_mode"`
	Components    []string `json:"components"`
	Failures      []string `json:"failures"`
	RunKeys       []string `json:"run_keys"`
	ElapsedMillis int64    `json:"elapsed_ms"`
}

// FaultRunRecord holds the output of one fault configuration across every
// cycle of a campaign.
type FaultRunRecord struct {
	VersionedRecord
	CampaignID string `json:"campaign_id"`
	Key        string `json:"key"`
	Component  string `json:"component"`
	Failure    string `json:"failure"`
	Bit        uint32 `json:"bit"`
	Neuron     int    `json:"neuron"`
	Row        int    `json:"row"`
	Col        int    `json:"col"`
	Skipped    bool   `json:"skipped"`
	SkipReason string `json:"skip_reason,omitempty"`
	// Counts is indexed [cycle][neuron].
	Counts      [][]int `json:"counts,omitempty"`
	TotalSpikes int     `json:"total_spikes"`
}
