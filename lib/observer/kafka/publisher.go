package kafka

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/ecociel/remind/lib/domain"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Producer defines the interface for producing messages to Kafka
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

type Publisher struct {
	client Producer
	topic  string
}

// New publishes to topic; an empty topic uses the client's default produce topic.
func New(client Producer, topic string) *Publisher {
	return &Publisher{client: client, topic: topic}
}

func (p *Publisher) PublishSync(ctx context.Context, job domain.Job) error {
	record := JobToRec(job)
	record.Topic = p.topic
	if err := p.client.ProduceSync(ctx, &record).FirstErr(); err != nil {
		return fmt.Errorf("publish job %s: %w", job.Key, err)
	}
	return nil
}

// JobToRec encodes a job as a record keyed by job key, so all firings of the
// same task land on the same partition in order.
func JobToRec(job domain.Job) (rec kgo.Record) {
	revision := binary.BigEndian.AppendUint64(nil, uint64(job.Revision))
	capacity := 3
	if job.RetryCount > 0 {
		capacity = 5
	}
	headers := make([]kgo.RecordHeader, 0, capacity)
	headers = append(headers, kgo.RecordHeader{Key: domain.HeaderName, Value: []byte(job.Name)})
	headers = append(headers, kgo.RecordHeader{Key: domain.HeaderKey, Value: []byte(job.Key)})
	headers = append(headers, kgo.RecordHeader{Key: domain.HeaderRevision, Value: revision})
	if job.RetryCount > 0 {
		cnt := binary.BigEndian.AppendUint16(nil, job.RetryCount)
		headers = append(headers, kgo.RecordHeader{Key: domain.HeaderRetryCount, Value: cnt})
		headers = append(headers, kgo.RecordHeader{Key: domain.HeaderRetryReason, Value: []byte(job.RetryReason)})
	}

	rec.Key = []byte(job.Key)
	rec.Value = job.Payload
	rec.Headers = headers
	return
}

// RecToJob decodes a record produced by JobToRec.
func RecToJob(rec *kgo.Record) (job domain.Job) {
	job.Key = string(rec.Key)
	job.Payload = rec.Value
	for i := range rec.Headers {
		v := rec.Headers[i].Value
		switch rec.Headers[i].Key {
		case domain.HeaderName:
			job.Name = string(v)
		case domain.HeaderKey:
			job.Key = string(v)
		case domain.HeaderRevision:
			if len(v) == 8 {
				job.Revision = int64(binary.BigEndian.Uint64(v))
			}
		case domain.HeaderRetryCount:
			if len(v) == 2 {
				job.RetryCount = binary.BigEndian.Uint16(v)
			}
		case domain.HeaderRetryReason:
			job.RetryReason = string(v)
		}
	}
	return
}
