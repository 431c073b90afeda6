package storage

import (
	"encoding/json"
	"errors"

	"momenta/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

func EncodeExperiment(e model.ExperimentRecord) ([]byte, error) {
	return json.Marshal(e)
}

func DecodeExperiment(data []byte) (model.ExperimentRecord, error) {
	var exp model.ExperimentRecord
	if err := json.Unmarshal(data, &exp); err != nil {
		return model.ExperimentRecord{}, err
	}
	if err := checkVersion(exp.VersionedRecord); err != nil {
		return model.ExperimentRecord{}, err
	}
	return exp, nil
}

func EncodeMoments(a model.AggregatedMoments) ([]byte, error) {
	return json.Marshal(a)
}

func DecodeMoments(data []byte) (model.AggregatedMoments, error) {
	var agg model.AggregatedMoments
	if err := json.Unmarshal(data, &agg); err != nil {
		return model.AggregatedMoments{}, err
	}
	if err := checkVersion(agg.VersionedRecord); err != nil {
		return model.AggregatedMoments{}, err
	}
	return agg, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
