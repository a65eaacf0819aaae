// Package events publishes audit and resolution events to Kafka
package events

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Publisher is satisfied by *kafka.Producer
type Publisher interface {
	Publish(ctx context.Context, events ...kafka.Event) error
}

// Emitter turns engine results into events. All events of a batch share its
// id as the message key.
type Emitter struct {
	publisher Publisher
	logger    ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(publisher Publisher, logger ectologger.Logger) *Emitter {
	return &Emitter{
		publisher: publisher,
		logger:    logger,
	}
}

// PublishAuditEntry emits one accepted audit entry
func (e *Emitter) PublishAuditEntry(ctx context.Context, entry models.AuditEntry) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.PublishAuditEntry")
	defer span.End()

	event := AuditEntryEvent{
		BaseEvent: NewBaseEvent(EventTypeAuditEntry, entry.BatchID),
		Entry:     entry,
	}
	return e.publish(ctx, entry.BatchID, EventTypeAuditEntry, event, map[string]string{
		"operation": string(entry.Operation),
	})
}

// EmitResolution emits one event per golden record and per pending cluster
func (e *Emitter) EmitResolution(ctx context.Context, batchID string, clusters []models.MatchCluster, golden []models.GoldenRecord) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitResolution")
	defer span.End()

	batch := make([]kafka.Event, 0, len(golden)+len(clusters))
	for _, g := range golden {
		batch = append(batch, kafka.Event{
			Key:       batchID,
			EventType: string(EventTypeGoldenRecordUpserted),
			Payload: GoldenRecordEvent{
				BaseEvent:       NewBaseEvent(EventTypeGoldenRecordUpserted, batchID),
				GoldenRecordID:  g.ID,
				ClusterID:       g.ClusterID,
				SourceRecordIDs: g.SourceRecordIDs,
				Confidence:      g.Confidence,
				Fingerprint:     g.Fingerprint,
				Record:          g,
			},
		})
	}
	for _, c := range clusters {
		if c.Status != models.ClusterStatusPending {
			continue
		}
		batch = append(batch, kafka.Event{
			Key:       batchID,
			EventType: string(EventTypeClusterPending),
			Payload: ClusterPendingEvent{
				BaseEvent:       NewBaseEvent(EventTypeClusterPending, batchID),
				ClusterID:       c.ID,
				RecordIDs:       c.RecordIDs,
				LinkCount:       len(c.Links),
				SuggestedMerges: c.SuggestedMerges,
			},
		})
	}

	if err := e.publisher.Publish(ctx, batch...); err != nil {
		tracing.RecordError(span, err)
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"batch_id": batchID,
			"events":   len(batch),
		}).Error("Failed to emit resolution events")
		return err
	}
	return nil
}

// EmitBatchFinished emits batch.completed or batch.failed
func (e *Emitter) EmitBatchFinished(ctx context.Context, result models.BatchResult, failed bool) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitBatchFinished")
	defer span.End()

	eventType := EventTypeBatchCompleted
	if failed {
		eventType = EventTypeBatchFailed
	}
	event := BatchFinishedEvent{
		BaseEvent: NewBaseEvent(eventType, result.BatchID),
		Result:    result,
	}
	return e.publish(ctx, result.BatchID, eventType, event, nil)
}

func (e *Emitter) publish(ctx context.Context, batchID string, eventType EventType, payload any, headers map[string]string) error {
	err := e.publisher.Publish(ctx, kafka.Event{
		Key:       batchID,
		EventType: string(eventType),
		Payload:   payload,
		Headers:   headers,
	})
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"batch_id":   batchID,
			"event_type": string(eventType),
		}).Errorf("Failed to emit %s event", eventType)
		return err
	}
	return nil
}
