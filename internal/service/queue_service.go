package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/episodeline/pipeline/internal/apperr"
	"github.com/episodeline/pipeline/internal/logging"
	"github.com/episodeline/pipeline/internal/client"
	"github.com/episodeline/pipeline/internal/config"
	"github.com/episodeline/pipeline/internal/model"
)

const (
	maxReceiveBatch = 10
	maxReceiveWait  = 20
)

var errQueueNotConfigured = errors.New("message queue not configured")

// MessageHandler processes one delivered message. Returning nil
// acknowledges it; an error leaves it for redelivery.
type MessageHandler func(ctx context.Context, msg model.ReceivedMessage) error

// QueueService is the gateway to the render job queue
type QueueService struct {
	queue client.MessageQueue
	cfg   config.QueueConfig
	log   logrus.FieldLogger
}

func NewQueueService(queue client.MessageQueue, cfg *config.QueueConfig, log logrus.FieldLogger) *QueueService {
	return &QueueService{
		queue: queue,
		cfg:   *cfg,
		log:   logging.WithComponent(log, "queue"),
	}
}

// SendProcessingJob publishes the job for the remote worker. Messages are
// ordered per episode and deduplicated per job.
func (s *QueueService) SendProcessingJob(ctx context.Context, job *model.RenderJob, editStructure json.RawMessage) (string, error) {
	const op = "SendProcessingJob"
	if s.queue == nil {
		return "", apperr.Upstream(op, errQueueNotConfigured)
	}

	body, err := json.Marshal(model.QueueMessage{
		JobID:            job.ID,
		EpisodeID:        job.EpisodeID,
		EditPlanID:       job.EditPlanID,
		ProcessingMethod: job.ProcessingMethod,
		EditStructure:    editStructure,
		Timestamp:        time.Now().UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal queue message: %w", err)
	}

	messageID, err := s.queue.Send(ctx, client.OutboundMessage{
		Body:            string(body),
		GroupID:         job.EpisodeID,
		DeduplicationID: job.ID,
		Attributes: map[string]string{
			"jobId":            job.ID,
			"episodeId":        job.EpisodeID,
			"processingMethod": string(job.ProcessingMethod),
		},
	})
	if err != nil {
		return "", apperr.Upstream(op, err)
	}

	s.log.WithFields(logrus.Fields{"job_id": job.ID, "message_id": messageID}).Info("job message sent")
	return messageID, nil
}

// ReceiveMessages long-polls for up to maxMessages messages (capped at 10)
// for at most waitSeconds (capped at 20). Non-positive values use the
// configured defaults.
func (s *QueueService) ReceiveMessages(ctx context.Context, maxMessages, waitSeconds int) ([]model.ReceivedMessage, error) {
	const op = "ReceiveMessages"
	if s.queue == nil {
		return nil, apperr.Upstream(op, errQueueNotConfigured)
	}
	if maxMessages <= 0 {
		maxMessages = s.cfg.MaxMessages
	}
	if maxMessages <= 0 || maxMessages > maxReceiveBatch {
		maxMessages = maxReceiveBatch
	}

	if waitSeconds <= 0 {
		waitSeconds = s.cfg.WaitSeconds
	}
	if waitSeconds > maxReceiveWait {
		waitSeconds = maxReceiveWait
	}

	msgs, err := s.queue.Receive(ctx, maxMessages, waitSeconds, s.cfg.VisibilityTimeout)
	if err != nil {
		return nil, apperr.Upstream(op, err)
	}

	out := make([]model.ReceivedMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, model.ReceivedMessage{
			MessageID:     m.MessageID,
			ReceiptHandle: m.ReceiptHandle,
			Body:          m.Body,
			Attributes:    m.Attributes,
		})
	}
	return out, nil
}

func (s *QueueService) DeleteMessage(ctx context.Context, receiptHandle string) error {
	if s.queue == nil {
		return apperr.Upstream("DeleteMessage", errQueueNotConfigured)
	}
	if err := s.queue.Delete(ctx, receiptHandle); err != nil {
		return apperr.Upstream("DeleteMessage", err)
	}
	return nil
}

// ExtendVisibility keeps a long-running message hidden from other consumers.
func (s *QueueService) ExtendVisibility(ctx context.Context, receiptHandle string, seconds int) error {
	const op = "ExtendVisibility"
	if seconds < 0 || seconds > 43200 {
		return apperr.Validation(op, "visibility timeout must be between 0 and 43200 seconds")
	}
	if s.queue == nil {
		return apperr.Upstream(op, errQueueNotConfigured)
	}
	if err := s.queue.ChangeVisibility(ctx, receiptHandle, seconds); err != nil {
		return apperr.Upstream(op, err)
	}
	return nil
}

func (s *QueueService) GetQueueStats(ctx context.Context) (model.QueueDepth, error) {
	return s.depth(ctx, "GetQueueStats", client.QueueMain)
}

func (s *QueueService) GetDeadLetterStats(ctx context.Context) (model.QueueDepth, error) {
	return s.depth(ctx, "GetDeadLetterStats", client.QueueDeadLetter)
}

func (s *QueueService) depth(ctx context.Context, op string, target client.QueueTarget) (model.QueueDepth, error) {
	if s.queue == nil {
		return model.QueueDepth{}, apperr.Upstream(op, errQueueNotConfigured)
	}
	attrs, err := s.queue.Attributes(ctx, target)
	if err != nil {
		return model.QueueDepth{}, apperr.Upstream(op, err)
	}
	return model.QueueDepth{
		Available: attrs.Visible,
		InFlight:  attrs.InFlight,
		Delayed:   attrs.Delayed,
	}, nil
}

// Consume receives and dispatches messages until ctx is cancelled. A
// message is deleted only after handle succeeds. No receive is started once
// ctx is done.
func (s *QueueService) Consume(ctx context.Context, handle MessageHandler) error {
	backoff := time.Second
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		msgs, err := s.ReceiveMessages(ctx, 0, 0)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.WithError(err).Warn("receive failed, backing off")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			continue
		}

		for _, msg := range msgs {
			entry := s.log.WithField("message_id", msg.MessageID)
			if err := handle(ctx, msg); err != nil {
				entry.WithError(err).Warn("message handler failed, leaving for redelivery")
				continue
			}
			if err := s.DeleteMessage(ctx, msg.ReceiptHandle); err != nil {
				entry.WithError(err).Warn("failed to delete handled message")
			}
		}
	}
}
