package memory

import (
	"context"
	"testing"
	"time"

	"streamgate/internal/core/domain"
)

func TestViewerRepository_SaveAndGet(t *testing.T) {
	repo := NewMemoryViewerRepository()
	ctx := context.Background()

	viewer := &domain.Viewer{
		ID:           "viewer-1",
		FullName:     "Ada Lovelace",
		PhoneNumber:  "+15550102030",
		RegisteredAt: time.Now(),
	}
	if err := repo.SaveViewer(ctx, viewer); err != nil {
		t.Fatalf("SaveViewer() unexpected error: %v", err)
	}

	got, err := repo.GetViewer(ctx, "viewer-1")
	if err != nil {
		t.Fatalf("GetViewer() unexpected error: %v", err)
	}
	if got.FullName != viewer.FullName {
		t.Errorf("FullName = %s, want %s", got.FullName, viewer.FullName)
	}

	if _, err := repo.GetViewer(ctx, "no-such-viewer"); err != domain.ErrViewerNotFound {
		t.Errorf("GetViewer(unknown) error = %v, want ErrViewerNotFound", err)
	}
}

func TestViewerRepository_ChannelStats(t *testing.T) {
	repo := NewMemoryViewerRepository()
	ctx := context.Background()
	channel := domain.ChannelID("main-live-stream")

	for _, uid := range []domain.SubjectID{1, 2, 3} {
		if err := repo.RecordJoin(ctx, channel, uid); err != nil {
			t.Fatalf("RecordJoin() unexpected error: %v", err)
		}
	}
	if err := repo.RecordLeave(ctx, channel, 2); err != nil {
		t.Fatalf("RecordLeave() unexpected error: %v", err)
	}
	// Rejoin after leave counts as a new join but not a new peak.
	if err := repo.RecordJoin(ctx, channel, 2); err != nil {
		t.Fatalf("RecordJoin() unexpected error: %v", err)
	}

	stats, err := repo.ChannelStats(ctx, channel)
	if err != nil {
		t.Fatalf("ChannelStats() unexpected error: %v", err)
	}
	if stats.ActiveViewers != 3 {
		t.Errorf("ActiveViewers = %d, want 3", stats.ActiveViewers)
	}
	if stats.PeakViewers != 3 {
		t.Errorf("PeakViewers = %d, want 3", stats.PeakViewers)
	}
	if stats.TotalJoins != 4 {
		t.Errorf("TotalJoins = %d, want 4", stats.TotalJoins)
	}

	if _, err := repo.ChannelStats(ctx, "no-such-channel"); err != domain.ErrChannelNotFound {
		t.Errorf("ChannelStats(unknown) error = %v, want ErrChannelNotFound", err)
	}
}

func TestViewerRepository_LeaveUnknownChannel(t *testing.T) {
	repo := NewMemoryViewerRepository()

	if err := repo.RecordLeave(context.Background(), "never-seen", 1); err != nil {
		t.Errorf("RecordLeave() on an unknown channel = %v, want nil", err)
	}
}
