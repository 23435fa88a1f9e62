package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// SQSAPI is the part of the SQS client the queue uses.
type SQSAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQSQueue hands job ids to workers through an SQS queue so several server
// instances can share the pipeline work.
type SQSQueue struct {
	client   SQSAPI
	queueURL string
	wait     int32
}

func NewSQSQueue(client SQSAPI, queueURL string) *SQSQueue {
	return &SQSQueue{client: client, queueURL: queueURL, wait: 20}
}

// ResolveQueueURL looks up the URL of a named queue.
func ResolveQueueURL(ctx context.Context, client *sqs.Client, name string) (string, error) {
	out, err := client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(name)})
	if err != nil {
		return "", err
	}
	return aws.ToString(out.QueueUrl), nil
}

func (q *SQSQueue) Push(ctx context.Context, id uuid.UUID) error {
	_, err := q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(id.String()),
	})
	return err
}

func (q *SQSQueue) Run(ctx context.Context, workers int, fn func(ctx context.Context, id uuid.UUID)) {
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				q.poll(ctx, fn)
			}
		}()
	}
	wg.Wait()
}

func (q *SQSQueue) poll(ctx context.Context, fn func(ctx context.Context, id uuid.UUID)) {
	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.queueURL),
		MaxNumberOfMessages: 1,
		WaitTimeSeconds:     q.wait,
	})
	if err != nil {
		if ctx.Err() == nil {
			log.Warn().Err(err).Msg("sqs receive failed")
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
		return
	}

	for _, msg := range out.Messages {
		id, err := uuid.Parse(aws.ToString(msg.Body))
		if err != nil {
			log.Warn().Str("body", aws.ToString(msg.Body)).Msg("dropping malformed job message")
		} else {
			fn(ctx, id)
		}
		// Failed jobs are recorded in the jobs table and re-run by an explicit reprocess, never redelivered.
		if _, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
			QueueUrl:      aws.String(q.queueURL),
			ReceiptHandle: msg.ReceiptHandle,
		}); err != nil {
			log.Warn().Err(err).Msg("sqs delete failed")
		}
	}
}
