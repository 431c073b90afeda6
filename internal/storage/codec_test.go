package storage

import (
	"errors"
	"math"
	"testing"

	"momenta/internal/model"
)

func TestCodecExperimentRoundTrip(t *testing.T) {
	in := testExperiment("run-1")
	data, err := EncodeExperiment(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := DecodeExperiment(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.ID != in.ID || out.Depth != in.Depth || out.Activation != in.Activation {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}

func TestCodecMomentsPreserveNonFiniteValues(t *testing.T) {
	in := testMoments("run-1")
	in.Stats["chi"] = []model.DepthStat{
		{Mean: model.Float(math.NaN()), Variance: model.Float(math.Inf(-1)), Count: 0, NonFinite: 5},
	}
	data, err := EncodeMoments(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := DecodeMoments(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !math.IsInf(float64(out.Stats["nu2_signal"][1].Mean), 1) {
		t.Fatal("+Inf mean lost")
	}
	chi := out.Stats["chi"][0]
	if !math.IsNaN(float64(chi.Mean)) {
		t.Fatalf("NaN mean lost: %g", float64(chi.Mean))
	}
	if !math.IsInf(float64(chi.Variance), -1) {
		t.Fatalf("-Inf variance lost: %g", float64(chi.Variance))
	}
}

func TestCodecRejectsVersionMismatch(t *testing.T) {
	exp := testExperiment("run-1")
	exp.SchemaVersion = CurrentSchemaVersion + 1
	data, err := EncodeExperiment(exp)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeExperiment(data); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("schema mismatch: %v", err)
	}

	agg := testMoments("run-1")
	agg.CodecVersion = CurrentCodecVersion + 1
	data, err = EncodeMoments(agg)
	if err != nil {
		t.Fatalf("encode moments: %v", err)
	}
	if _, err := DecodeMoments(data); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("codec mismatch: %v", err)
	}
}
