package cli

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseAssignments(t *testing.T) {
	tests := []struct {
		name    string
		pairs   []string
		want    map[string]any
		wantErr bool
	}{
		{
			name:  "empty",
			pairs: nil,
			want:  map[string]any{},
		},
		{
			name:  "plain strings",
			pairs: []string{"title=Engineer", "name=Bob Smith"},
			want:  map[string]any{"title": "Engineer", "name": "Bob Smith"},
		},
		{
			name:  "json values",
			pairs: []string{"salary=120000", "active=false", `skills=["go"]`, "manager=null"},
			want: map[string]any{
				"salary":  float64(120000),
				"active":  false,
				"skills":  []any{"go"},
				"manager": nil,
			},
		},
		{
			name:  "reference",
			pairs: []string{`head={"_table":"employees","_id":"E1"}`},
			want:  map[string]any{"head": map[string]any{"_table": "employees", "_id": "E1"}},
		},
		{
			name:  "value with equals sign",
			pairs: []string{"note=a=b"},
			want:  map[string]any{"note": "a=b"},
		},
		{
			name:    "missing equals sign",
			pairs:   []string{"title"},
			wantErr: true,
		},
		{
			name:    "missing column",
			pairs:   []string{"=Engineer"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseAssignments(tt.pairs)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("parseAssignments() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := writeJSON(&buf, map[string]any{"_id": "D1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, want := buf.String(), "{\n  \"_id\": \"D1\"\n}\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
