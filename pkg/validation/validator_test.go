package validation

import (
	"errors"
	"strings"
	"testing"
)

type variableDoc struct {
	ID   string  `validate:"required,ident"`
	Type string  `validate:"required,oneof=incremental logarithmic01"`
	Max  float64 `validate:"gte=0"`
}

type protocolDoc struct {
	Replicas  int           `validate:"min=1"`
	Variables []variableDoc `validate:"dive"`
}

// TestStruct tests tag validation and the field reported for each failure
func TestStruct(t *testing.T) {
	tests := []struct {
		name        string
		doc         protocolDoc
		expectError bool
		errorField  string
	}{
		{
			name: "Valid document",
			doc: protocolDoc{
				Replicas:  3,
				Variables: []variableDoc{{ID: "sens", Type: "incremental", Max: 1}},
			},
		},
		{
			name:        "Zero replicas",
			doc:         protocolDoc{Replicas: 0},
			expectError: true,
			errorField:  "Replicas",
		},
		{
			name: "Missing variable id",
			doc: protocolDoc{
				Replicas:  1,
				Variables: []variableDoc{{Type: "incremental"}},
			},
			expectError: true,
			errorField:  "Variables[0].ID",
		},
		{
			name: "Bad identifier",
			doc: protocolDoc{
				Replicas:  1,
				Variables: []variableDoc{{ID: "9lives", Type: "incremental"}},
			},
			expectError: true,
			errorField:  "Variables[0].ID",
		},
		{
			name: "Unknown variable type",
			doc: protocolDoc{
				Replicas:  1,
				Variables: []variableDoc{{ID: "a", Type: "geometric"}},
			},
			expectError: true,
			errorField:  "Variables[0].Type",
		},
		{
			name: "Negative bound",
			doc: protocolDoc{
				Replicas:  1,
				Variables: []variableDoc{{ID: "a", Type: "incremental", Max: -1}},
			},
			expectError: true,
			errorField:  "Variables[0].Max",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Struct("protocol", &tt.doc)
			if !tt.expectError {
				if err != nil {
					t.Fatalf("Struct() = %v, want nil", err)
				}
				return
			}
			var ce *ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("Struct() = %v, want ConfigError", err)
			}
			if !strings.HasSuffix(ce.Field, tt.errorField) {
				t.Errorf("Field = %q, want suffix %q", ce.Field, tt.errorField)
			}
			if ce.Component != "protocol" {
				t.Errorf("Component = %q", ce.Component)
			}
		})
	}
}

func TestStructNil(t *testing.T) {
	if err := Struct("protocol", nil); !IsConfigError(err) {
		t.Errorf("Struct(nil) = %v", err)
	}
}

func TestIdent(t *testing.T) {
	for _, s := range []string{"sens", "_x", "fpr.rate", "a-b_2"} {
		if !Ident(s) {
			t.Errorf("Ident(%q) = false", s)
		}
	}
	for _, s := range []string{"", "1a", "a b", "x;y", "a=b"} {
		if Ident(s) {
			t.Errorf("Ident(%q) = true", s)
		}
	}
}
