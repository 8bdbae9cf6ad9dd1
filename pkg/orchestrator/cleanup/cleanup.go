// Package cleanup reclaims uploaded source media: immediately on pipeline
// success, or after a 24-hour grace period on failure.
package cleanup

import (
	"context"
	"errors"
	"time"

	"github.com/meetscribe-ai/platform/pkg/common/logger"
	"github.com/meetscribe-ai/platform/pkg/meeting"
	"github.com/meetscribe-ai/platform/pkg/observability/metrics"
	"github.com/meetscribe-ai/platform/pkg/storage/blob"
)

type Reaper struct {
	store      meeting.Store
	blobs      blob.Store
	failureTTL time.Duration
	now        func() time.Time
}

func NewReaper(store meeting.Store, blobs blob.Store, failureTTL time.Duration) *Reaper {
	if failureTTL <= 0 {
		failureTTL = 24 * time.Hour
	}
	return &Reaper{store: store, blobs: blobs, failureTTL: failureTTL, now: time.Now}
}

// DeleteUploadBlob reclaims a meeting's source media. With immediate=true the
// object is deleted now and deletedAt stamped; the database record is the
// source of truth, so an object-store failure only gets logged. With
// immediate=false the blob is stamped with an expiry for the TTL sweep.
func (r *Reaper) DeleteUploadBlob(ctx context.Context, meetingID string, immediate bool) error {
	b, err := r.store.GetUploadBlob(ctx, meetingID)
	if err != nil {
		if errors.Is(err, meeting.ErrBlobNotFound) {
			return nil
		}
		return err
	}
	if b.DeletedAt != nil {
		return nil
	}

	now := r.now().UTC()
	if !immediate {
		return r.store.SetBlobExpiry(ctx, meetingID, now.Add(r.failureTTL))
	}

	if err := r.blobs.Remove(ctx, b.StoragePath); err != nil {
		logger.Log.WithError(err).WithFields(map[string]interface{}{
			"meeting_id":   meetingID,
			"storage_path": b.StoragePath,
		}).Error("object-store deletion failed, marking deleted anyway")
	}
	return r.store.MarkBlobDeleted(ctx, meetingID, now)
}

// SweepExpired deletes every blob past its expiry that has not been deleted
// yet. Per-object failures are counted and logged; the sweep keeps going.
func (r *Reaper) SweepExpired(ctx context.Context) (deleted, failed int, err error) {
	expired, err := r.store.ListExpiredBlobs(ctx, r.now().UTC())
	if err != nil {
		return 0, 0, err
	}

	for _, b := range expired {
		if err := r.blobs.Remove(ctx, b.StoragePath); err != nil {
			failed++
			logger.Log.WithError(err).WithFields(map[string]interface{}{
				"meeting_id":   b.MeetingID,
				"storage_path": b.StoragePath,
			}).Error("failed to delete expired blob")
			continue
		}
		if err := r.store.MarkBlobDeleted(ctx, b.MeetingID, r.now().UTC()); err != nil {
			failed++
			logger.Log.WithError(err).WithField("meeting_id", b.MeetingID).
				Error("failed to mark expired blob deleted")
			continue
		}
		deleted++
	}

	metrics.AddBlobsReaped(deleted)
	if deleted > 0 || failed > 0 {
		logger.Log.WithFields(map[string]interface{}{
			"deleted": deleted,
			"failed":  failed,
		}).Info("blob TTL sweep finished")
	}
	return deleted, failed, nil
}
