package id

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestNewIDs_Prefixes(t *testing.T) {
	tests := []struct {
		name   string
		gen    func() string
		prefix string
	}{
		{"batch", NewBatchID, "batch_"},
		{"job", NewJobID, "job_"},
		{"render", NewRenderJobID, "render_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.gen()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Fatalf("expected prefix %q, got %s", tt.prefix, got)
			}
			if _, err := uuid.Parse(strings.TrimPrefix(got, tt.prefix)); err != nil {
				t.Errorf("expected UUID suffix, got %s: %v", got, err)
			}
		})
	}
}

func TestNewJobID_Uniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewJobID()
		if seen[id] {
			t.Errorf("duplicate ID generated: %s", id)
		}
		seen[id] = true
	}
}
