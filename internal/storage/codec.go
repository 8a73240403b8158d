package storage

import (
	"encoding/json"
	"errors"

	"neurofault/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

// Versioned returns the record header for the current schema and codec.
func Versioned() model.VersionedRecord {
	return model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

func EncodeCampaign(c model.CampaignRecord) ([]byte, error) {
	return json.Marshal(c)
}

func DecodeCampaign(data []byte) (model.CampaignRecord, error) {
	var campaign model.CampaignRecord
	if err := json.Unmarshal(data, &campaign); err != nil {
		return model.CampaignRecord{}, err
	}
	if err := checkVersion(campaign.VersionedRecord); err != nil {
		return model.CampaignRecord{}, err
	}
	return campaign, nil
}

func EncodeFaultRun(r model.FaultRunRecord) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeFaultRun(data []byte) (model.FaultRunRecord, error) {
	var run model.FaultRunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return model.FaultRunRecord{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return model.FaultRunRecord{}, err
	}
	return run, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
