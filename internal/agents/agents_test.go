// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package agents

import (
	"context"
	"reflect"
	"testing"

	"github.com/pdiddy/litriage/pkg/types"
)

func TestValidate(t *testing.T) {
	schema := types.Schema{
		Name: "test",
		Fields: []types.SchemaField{
			{Name: "genes", Kind: types.FieldList, Required: true},
			{Name: "note", Kind: types.FieldString, Required: false},
			{Name: "count", Kind: types.FieldNumber, Required: false},
		},
	}

	tests := []struct {
		name    string
		res     types.ExtractionResult
		wantErr bool
	}{
		{
			name: "valid payload",
			res: types.ExtractionResult{
				Payload:    map[string]any{"genes": []string{"KCNQ2"}, "count": 1},
				Confidence: 0.8,
			},
		},
		{
			name: "missing required field",
			res: types.ExtractionResult{
				Payload:    map[string]any{"note": "x"},
				Confidence: 0.8,
			},
			wantErr: true,
		},
		{
			name: "wrong kind",
			res: types.ExtractionResult{
				Payload:    map[string]any{"genes": "KCNQ2"},
				Confidence: 0.8,
			},
			wantErr: true,
		},
		{
			name: "confidence out of range",
			res: types.ExtractionResult{
				Payload:    map[string]any{"genes": []string{"KCNQ2"}},
				Confidence: 1.2,
			},
			wantErr: true,
		},
		{
			name: "optional field absent",
			res: types.ExtractionResult{
				Payload:    map[string]any{"genes": []any{"KCNQ2"}},
				Confidence: 0.5,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate("test", tt.res, schema)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !IsValidation(err) {
				t.Errorf("error is not a ValidationError: %v", err)
			}
		})
	}
}

func TestRegistry(t *testing.T) {
	r, err := NewRegistry(
		Entry{Agent: DemographicsAgent{}, Schema: DemographicsSchema()},
		Entry{Agent: GeneticsAgent{}, Schema: GeneticsSchema()},
	)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	if got := r.IDs(); !reflect.DeepEqual(got, []string{"demographics", "genetics"}) {
		t.Errorf("IDs = %v", got)
	}
	if _, ok := r.Get("genetics"); !ok {
		t.Error("genetics not found")
	}
	if _, ok := r.Get("unknown"); ok {
		t.Error("unknown agent should not resolve")
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(
		Entry{Agent: GeneticsAgent{}, Schema: GeneticsSchema()},
		Entry{Agent: GeneticsAgent{}, Schema: GeneticsSchema()},
	)
	if err == nil {
		t.Fatal("want error for duplicate agent IDs")
	}
}

func TestDemographicsAgent(t *testing.T) {
	text := "We report a 3-year-old boy and a female infant. The boy, aged 3 years old, presented with seizures."

	res, err := DemographicsAgent{}.Extract(context.Background(), text, DemographicsSchema())
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if err := Validate("demographics", res, DemographicsSchema()); err != nil {
		t.Fatalf("output fails own schema: %v", err)
	}

	sexes, _ := res.Payload["sexes"].([]string)
	if !reflect.DeepEqual(sexes, []string{"boy", "female"}) {
		t.Errorf("sexes = %v", sexes)
	}
	ages, _ := res.Payload["ages"].([]string)
	if len(ages) == 0 {
		t.Error("no ages extracted")
	}
	if res.Confidence <= 0 {
		t.Errorf("confidence = %f", res.Confidence)
	}
}

func TestGeneticsAgent(t *testing.T) {
	text := "A de novo KCNQ2 variant (c.881C>T, p.Ala294Val) was found. DNA sequencing of SCN1A was negative."

	res, err := GeneticsAgent{}.Extract(context.Background(), text, GeneticsSchema())
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if err := Validate("genetics", res, GeneticsSchema()); err != nil {
		t.Fatalf("output fails own schema: %v", err)
	}

	genes, _ := res.Payload["genes"].([]string)
	if !reflect.DeepEqual(genes, []string{"KCNQ2", "SCN1A"}) {
		t.Errorf("genes = %v (DNA must not match)", genes)
	}
	variants, _ := res.Payload["variants"].([]string)
	if len(variants) != 2 {
		t.Errorf("variants = %v, want c. and p. notations", variants)
	}
	if res.Confidence != 0.9 {
		t.Errorf("confidence = %f, want 0.9", res.Confidence)
	}
}

func TestGeneticsAgentNoFindings(t *testing.T) {
	res, err := GeneticsAgent{}.Extract(context.Background(), "No molecular workup was performed.", GeneticsSchema())
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.Confidence != 0 {
		t.Errorf("confidence = %f, want 0", res.Confidence)
	}
}

func TestAgentsHonorCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := (DemographicsAgent{}).Extract(ctx, "text", DemographicsSchema()); err == nil {
		t.Error("demographics ignored cancellation")
	}
	if _, err := (GeneticsAgent{}).Extract(ctx, "text", GeneticsSchema()); err == nil {
		t.Error("genetics ignored cancellation")
	}
}
