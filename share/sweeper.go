package share

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/liondadev/quick-file-share/store"
	"github.com/liondadev/quick-file-share/thumbnail"
	"github.com/liondadev/quick-file-share/types"
)

// SweepPolicy decides what happens to an expired share whose blobs couldn't
// all be deleted.
type SweepPolicy int

const (
	// RetainOnBlobError keeps the share record so the next sweep retries.
	RetainOnBlobError SweepPolicy = iota
	// PurgeOnBlobError drops the record anyway, orphaning the blobs.
	PurgeOnBlobError
)

// Sweeper deletes expired shares together with their blobs.
type Sweeper struct {
	m *Manager

	interval time.Duration
	policy   SweepPolicy
}

// NewSweeper returns a sweeper running every interval.
func NewSweeper(m *Manager, interval time.Duration, policy SweepPolicy) *Sweeper {
	return &Sweeper{m: m, interval: interval, policy: policy}
}

func (s *Sweeper) deleteBlobs(ctx context.Context, share *types.Share) bool {
	ok := true
	for _, f := range share.Files {
		for _, key := range []string{f.Locator, thumbnailKey(f.Locator, thumbnail.PNG), thumbnailKey(f.Locator, thumbnail.GIF)} {
			if err := s.m.blobs.Delete(ctx, key); err != nil {
				s.m.logger.Error("failed to delete blob", "share", share.PublicId, "key", key, "error", err)
				ok = false
			}
		}
	}
	return ok
}

// Sweep removes every share that expired strictly before now and reports how
// many share records were deleted.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	expired, err := s.m.store.ExpiredShares(ctx, s.m.now().Unix())
	if err != nil {
		return 0, err
	}

	removed := 0
	for i := range expired {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		share := &expired[i]

		if !s.deleteBlobs(ctx, share) && s.policy == RetainOnBlobError {
			s.m.logger.Warn("keeping expired share until its blobs are gone", "share", share.PublicId)
			continue
		}

		if s.m.revokeOnChange {
			if err := s.m.signer.Revoke(ctx, fileIds(share.Files)...); err != nil {
				s.m.logger.Error("failed to revoke download tokens", "share", share.PublicId, "error", err)
			}
		}

		err := s.m.store.DeleteShare(ctx, share.Id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return removed, fmt.Errorf("delete share %s: %w", share.PublicId, err)
		}
		removed++
	}

	return removed, nil
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		n, err := s.Sweep(ctx)
		switch {
		case ctx.Err() != nil:
			return nil
		case err != nil:
			s.m.logger.Error("sweep failed", "removed", n, "error", err)
		case n > 0:
			s.m.logger.Info("swept expired shares", "removed", n)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
