// Package reputation implements the rating collaborator invoked on milestone
// approval. The engine only depends on the Recorder contract; profile storage
// and review-driven ratings live in a separate subsystem.
package reputation

import (
	"context"
	"fmt"
	"sync"

	"escrowcore/pkg/domain"
)

// Recorder registers a rating contribution for an account. A failure aborts
// the operation that triggered the contribution.
type Recorder interface {
	RecordRating(ctx context.Context, account domain.AccountID, rating int) error
}

// RatingOutOfRangeError reports a rating outside the 0..MaxRating scale.
type RatingOutOfRangeError struct {
	Rating int
}

func (e RatingOutOfRangeError) Error() string {
	return fmt.Sprintf("rating %d outside range 0..%d", e.Rating, domain.MaxRating)
}

// Profile holds the running rating aggregate for one account.
type Profile struct {
	Account       domain.AccountID `json:"account"`
	AverageRating float64          `json:"average_rating"`
	ReviewCount   int              `json:"review_count"`
}

// MemoryRecorder keeps rating aggregates in process memory.
type MemoryRecorder struct {
	mu       sync.RWMutex
	profiles map[domain.AccountID]Profile
}

// NewMemoryRecorder constructs an empty in-memory recorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{profiles: make(map[domain.AccountID]Profile)}
}

// RecordRating folds a rating into the account's running average and
// increments its review count. Ratings outside 0..MaxRating are rejected.
func (r *MemoryRecorder) RecordRating(_ context.Context, account domain.AccountID, rating int) error {
	if account == "" {
		return fmt.Errorf("reputation: empty account")
	}
	if rating < 0 || rating > domain.MaxRating {
		return RatingOutOfRangeError{Rating: rating}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	profile := r.profiles[account]
	profile.Account = account
	profile.AverageRating = (profile.AverageRating*float64(profile.ReviewCount) + float64(rating)) / float64(profile.ReviewCount+1)
	profile.ReviewCount++
	r.profiles[account] = profile
	return nil
}

// Profile returns the aggregate for an account.
func (r *MemoryRecorder) Profile(account domain.AccountID) (Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[account]
	return p, ok
}
