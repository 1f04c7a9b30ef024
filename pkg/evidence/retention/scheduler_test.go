package retention

import (
	"context"
	"testing"

	"mercator-hq/honeywire/pkg/evidence/storage"
)

func TestScheduler_Start(t *testing.T) {
	tests := []struct {
		name        string
		schedule    string
		wantRunning bool
		wantError   bool
	}{
		{"valid daily schedule", "0 3 * * *", true, false},
		{"valid hourly schedule", "0 * * * *", true, false},
		{"descriptor schedule", "@every 1h", true, false},
		{"empty schedule", "", false, false},
		{"invalid schedule", "not a schedule", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pruner := NewPruner(storage.NewMemoryStorage(), &Config{
				RetentionDays: 7,
				PruneSchedule: tt.schedule,
			})

			err := pruner.Start(context.Background())
			if (err != nil) != tt.wantError {
				t.Fatalf("Start() error = %v, wantError %v", err, tt.wantError)
			}
			defer pruner.Stop()

			if got := pruner.scheduler.IsRunning(); got != tt.wantRunning {
				t.Errorf("IsRunning() = %v, want %v", got, tt.wantRunning)
			}
			if got := pruner.NextPruning() != nil; got != tt.wantRunning {
				t.Errorf("NextPruning() set = %v, want %v", got, tt.wantRunning)
			}
		})
	}
}

func TestScheduler_StopOnContextCancel(t *testing.T) {
	pruner := NewPruner(storage.NewMemoryStorage(), &Config{PruneSchedule: "0 3 * * *"})

	ctx, cancel := context.WithCancel(context.Background())
	if err := pruner.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := pruner.Start(ctx); err == nil {
		t.Error("second Start() succeeded")
	}

	cancel()
	pruner.Stop()

	if pruner.scheduler.IsRunning() {
		t.Error("scheduler still running after Stop")
	}
}
