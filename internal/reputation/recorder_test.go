package reputation

import (
	"context"
	"errors"
	"testing"

	"escrowcore/pkg/domain"
)

func TestRecordRatingRunningAverage(t *testing.T) {
	rec := NewMemoryRecorder()
	ctx := context.Background()

	for _, rating := range []int{500, 300, 400} {
		if err := rec.RecordRating(ctx, "freelancer-1", rating); err != nil {
			t.Fatalf("record %d: %v", rating, err)
		}
	}

	profile, ok := rec.Profile("freelancer-1")
	if !ok {
		t.Fatalf("expected profile to exist")
	}
	if profile.ReviewCount != 3 {
		t.Fatalf("expected 3 reviews, got %d", profile.ReviewCount)
	}
	if profile.AverageRating != 400 {
		t.Fatalf("expected average 400, got %v", profile.AverageRating)
	}
}

func TestRecordRatingRejectsOutOfRange(t *testing.T) {
	rec := NewMemoryRecorder()
	ctx := context.Background()

	err := rec.RecordRating(ctx, "freelancer-1", domain.MaxRating+1)
	var oor RatingOutOfRangeError
	if !errors.As(err, &oor) {
		t.Fatalf("expected out-of-range error, got %v", err)
	}
	if err := rec.RecordRating(ctx, "freelancer-1", -1); err == nil {
		t.Fatalf("expected negative rating to be rejected")
	}
	if _, ok := rec.Profile("freelancer-1"); ok {
		t.Fatalf("rejected ratings must not create a profile")
	}
}

func TestRecordRatingRejectsEmptyAccount(t *testing.T) {
	rec := NewMemoryRecorder()
	if err := rec.RecordRating(context.Background(), "", 500); err == nil {
		t.Fatalf("expected empty account to be rejected")
	}
}
