package domain

import (
	"context"
	"errors"
	"fmt"

	apperrors "github.com/kringleapp/kringle/internal/errors"
)

// maxTxAttempts bounds optimistic-concurrency retries of one group
// update. A conflict means another invocation committed between our read
// and write; the whole transaction reruns from its first read. Exhausting
// the bound is reported as a retryable internal failure, never as a
// partial write.
const maxTxAttempts = 5

// runGroupUpdate executes fn as one atomic transaction against the
// group's documents, retrying on conflict up to maxTxAttempts times.
func (s *Service) runGroupUpdate(ctx context.Context, groupID string, fn func(ctx context.Context, tx TxView) error) error {
	var lastConflict error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err := s.store.RunGroupUpdate(ctx, groupID, fn)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrConflict) {
			return err
		}
		lastConflict = err
	}
	return apperrors.Wrap(apperrors.CodeTxConflictExhausted,
		fmt.Sprintf("group %s update conflicted %d times", groupID, maxTxAttempts), lastConflict)
}
