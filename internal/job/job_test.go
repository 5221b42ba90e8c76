package job

import (
	"strings"
	"testing"
)

func TestNewBatch(t *testing.T) {
	b := NewBatch("listing-1", "user-1", "https://app.example.com/hooks")

	if !strings.HasPrefix(b.ID, "batch_") {
		t.Errorf("expected batch ID prefix, got %s", b.ID)
	}
	if b.Status != StatusPending {
		t.Errorf("expected status %s, got %s", StatusPending, b.Status)
	}
	if b.CreatedAt.IsZero() || b.UpdatedAt.IsZero() {
		t.Error("expected timestamps to be set")
	}
}

func TestNewJob(t *testing.T) {
	j := NewJob("batch-1", GenerationSettings{SortOrder: 2, ImageURL: "https://img"})

	if !strings.HasPrefix(j.ID, "job_") {
		t.Errorf("expected job ID prefix, got %s", j.ID)
	}
	if j.BatchID != "batch-1" {
		t.Errorf("expected batch ID batch-1, got %s", j.BatchID)
	}
	if j.Status != StatusPending {
		t.Errorf("expected status %s, got %s", StatusPending, j.Status)
	}
	if j.Settings.SortOrder != 2 {
		t.Errorf("expected sort order 2, got %d", j.Settings.SortOrder)
	}
}

func TestJob_Transitions(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		to      Status
		wantErr bool
	}{
		{"pending to processing", StatusPending, StatusProcessing, false},
		{"pending to canceled", StatusPending, StatusCanceled, false},
		{"pending to failed", StatusPending, StatusFailed, false},
		{"processing to completed", StatusProcessing, StatusCompleted, false},
		{"processing to failed", StatusProcessing, StatusFailed, false},
		{"processing to canceled", StatusProcessing, StatusCanceled, false},
		{"pending to completed", StatusPending, StatusCompleted, true},
		{"processing to pending", StatusProcessing, StatusPending, true},
		{"completed to canceled", StatusCompleted, StatusCanceled, true},
		{"completed to failed", StatusCompleted, StatusFailed, true},
		{"failed to completed", StatusFailed, StatusCompleted, true},
		{"canceled to processing", StatusCanceled, StatusProcessing, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := NewJob("b", GenerationSettings{})
			j.Status = tt.from

			err := j.TransitionTo(tt.to)

			if tt.wantErr && err == nil {
				t.Errorf("expected error for transition %s -> %s", tt.from, tt.to)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error for transition %s -> %s: %v", tt.from, tt.to, err)
			}
		})
	}
}

func TestJob_CannotLeaveTerminalState(t *testing.T) {
	terminal := []Status{StatusCompleted, StatusFailed, StatusCanceled}
	all := []Status{StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusCanceled}

	for _, from := range terminal {
		for _, to := range all {
			t.Run(string(from)+"_to_"+string(to), func(t *testing.T) {
				j := NewJob("b", GenerationSettings{})
				j.Status = from
				if err := j.TransitionTo(to); err != ErrInvalidTransition {
					t.Errorf("expected ErrInvalidTransition, got %v", err)
				}

				b := NewBatch("l", "u", "")
				b.Status = from
				if err := b.TransitionTo(to); err != ErrInvalidTransition {
					t.Errorf("batch: expected ErrInvalidTransition, got %v", err)
				}
			})
		}
	}
}

func TestJob_TransitionSetsCompletedAt(t *testing.T) {
	j := NewJob("b", GenerationSettings{})
	_ = j.TransitionTo(StatusProcessing)
	if !j.CompletedAt.IsZero() {
		t.Error("expected CompletedAt to be unset while processing")
	}
	if err := j.TransitionTo(StatusCompleted); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if j.CompletedAt.IsZero() {
		t.Error("expected CompletedAt to be set")
	}
}

func TestAllowedFrom(t *testing.T) {
	tests := []struct {
		name string
		got  []Status
		want []Status
	}{
		{"job processing", JobAllowedFrom(StatusProcessing), []Status{StatusPending}},
		{"job completed", JobAllowedFrom(StatusCompleted), []Status{StatusProcessing}},
		{"job failed", JobAllowedFrom(StatusFailed), []Status{StatusPending, StatusProcessing}},
		{"job canceled", JobAllowedFrom(StatusCanceled), []Status{StatusPending, StatusProcessing}},
		{"batch completed", BatchAllowedFrom(StatusCompleted), []Status{StatusPending, StatusProcessing}},
		{"batch processing", BatchAllowedFrom(StatusProcessing), []Status{StatusPending}},
		{"job pending", JobAllowedFrom(StatusPending), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if len(tt.got) != len(tt.want) {
				t.Fatalf("got %v, want %v", tt.got, tt.want)
			}
			for i := range tt.want {
				if tt.got[i] != tt.want[i] {
					t.Errorf("got %v, want %v", tt.got, tt.want)
				}
			}
		})
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status   Status
		terminal bool
	}{
		{StatusPending, false},
		{StatusProcessing, false},
		{StatusCompleted, true},
		{StatusFailed, true},
		{StatusCanceled, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.IsTerminal(); got != tt.terminal {
				t.Errorf("IsTerminal() = %v, want %v", got, tt.terminal)
			}
		})
	}
}

func TestJob_ApplyPatch(t *testing.T) {
	j := NewJob("b", GenerationSettings{})
	url := "https://cdn/clip.mp4"
	dur := 6.5

	j.Apply(Patch{VideoURL: &url, DurationSeconds: &dur})

	if j.VideoURL != url {
		t.Errorf("expected VideoURL %s, got %s", url, j.VideoURL)
	}
	if j.DurationSeconds == nil || *j.DurationSeconds != 6.5 {
		t.Errorf("expected duration 6.5, got %v", j.DurationSeconds)
	}

	dur = 1
	if *j.DurationSeconds != 6.5 {
		t.Error("patch value should be copied, not aliased")
	}
}

func TestJob_Clone(t *testing.T) {
	d := 4.0
	j := NewJob("b", GenerationSettings{
		DurationSeconds: &d,
		TextOverlay:     &TextOverlay{Text: "3 bed"},
	})

	clone := j.Clone()
	clone.Status = StatusCompleted
	*clone.Settings.DurationSeconds = 9
	clone.Settings.TextOverlay.Text = "changed"

	if j.Status == StatusCompleted {
		t.Error("modifying clone should not affect original")
	}
	if *j.Settings.DurationSeconds != 4 {
		t.Error("modifying clone duration should not affect original")
	}
	if j.Settings.TextOverlay.Text != "3 bed" {
		t.Error("modifying clone overlay should not affect original")
	}
}
