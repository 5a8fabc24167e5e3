package review

import (
	"context"
	"fmt"
	"log"
	"time"

	"qbank/internal/question"
)

// Saver is the persistence boundary for approved questions.
type Saver interface {
	SaveBatch(ctx context.Context, poolID int64, items []question.ApprovedQuestion) error
}

// BatchCommitter sends a whole approved list to a Saver in one call.
type BatchCommitter struct {
	saver Saver
}

func NewBatchCommitter(saver Saver) *BatchCommitter {
	return &BatchCommitter{saver: saver}
}

func (b *BatchCommitter) Commit(ctx context.Context, poolID int64, items []question.ApprovedQuestion) error {
	if len(items) == 0 {
		return ErrNoApprovedItems
	}

	batch := make([]question.ApprovedQuestion, len(items))
	for i, it := range items {
		batch[i] = it
		batch[i].Options = append([]question.Option(nil), it.Options...)
	}

	start := time.Now()
	if err := b.saver.SaveBatch(ctx, poolID, batch); err != nil {
		log.Printf("review: commit pool=%d items=%d failed: %v", poolID, len(batch), err)
		return fmt.Errorf("save batch: %w", err)
	}
	log.Printf("review: committed pool=%d items=%d in %s", poolID, len(batch), time.Since(start).Round(time.Millisecond))
	return nil
}
