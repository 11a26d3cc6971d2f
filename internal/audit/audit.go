package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"marketplace-gateway/internal/client"
	"marketplace-gateway/internal/model"
	"marketplace-gateway/internal/util"
)

const (
	queueSize     = 4096
	batchSize     = 200
	flushInterval = 2 * time.Second
	writeTimeout  = 5 * time.Second

	insertQuery = `INSERT INTO audit_log (
        record_id, method, path, query, status_code, user_id, api_key_id,
        client_ip, user_agent, response_time_ms, created_at)`
)

// Logger persists one record per handled request, fire-and-forget. Records
// are enqueued without blocking the request path, batch-inserted into
// ClickHouse, and optionally mirrored to Kafka. Every failure is swallowed:
// a degraded audit pipeline never changes a request's outcome, and at least
// -once delivery is not promised either (a full queue drops the record).
type Logger struct {
	clickhouse *client.ClickHouseClient
	producer   *client.KafkaProducer

	queue chan model.AuditLogRecord

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewLogger starts the background flusher. producer may be nil.
func NewLogger(clickhouse *client.ClickHouseClient, producer *client.KafkaProducer) *Logger {
	l := &Logger{
		clickhouse: clickhouse,
		producer:   producer,
		queue:      make(chan model.AuditLogRecord, queueSize),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	go l.run()
	return l
}

// Record enqueues one audit record. Never blocks; when the queue is full the
// record is dropped and counted in logs.
func (l *Logger) Record(record model.AuditLogRecord) {
	if record.RecordID == "" {
		record.RecordID = uuid.New().String()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	select {
	case l.queue <- record:
	default:
		util.Warn("audit queue full, dropping record",
			zap.String("method", record.Method),
			zap.String("path", record.Path))
	}
}

// Close drains the queue and stops the flusher.
func (l *Logger) Close() {
	l.stopOnce.Do(func() {
		close(l.stop)
		<-l.done
	})
}

func (l *Logger) run() {
	defer close(l.done)

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]model.AuditLogRecord, 0, batchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		l.write(batch)
		batch = batch[:0]
	}

	for {
		select {
		case record := <-l.queue:
			batch = append(batch, record)
			if len(batch) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-l.stop:
			// Drain whatever is still queued before exiting.
			for {
				select {
				case record := <-l.queue:
					batch = append(batch, record)
					if len(batch) >= batchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

func (l *Logger) write(batch []model.AuditLogRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	rows := make([][]interface{}, 0, len(batch))
	for _, r := range batch {
		rows = append(rows, []interface{}{
			r.RecordID, r.Method, r.Path, r.Query, int32(r.StatusCode),
			r.UserID, r.APIKeyID, r.ClientIP, r.UserAgent,
			r.ResponseTime, r.CreatedAt,
		})
	}

	if l.clickhouse != nil {
		if err := l.clickhouse.BatchInsert(ctx, insertQuery, rows); err != nil {
			util.Error("failed to write audit batch",
				zap.Int("record_count", len(batch)),
				zap.Error(err))
		}
	}

	if l.producer != nil {
		l.publish(ctx, batch)
	}
}

func (l *Logger) publish(ctx context.Context, batch []model.AuditLogRecord) {
	for _, r := range batch {
		payload, err := json.Marshal(r)
		if err != nil {
			continue
		}
		if err := l.producer.Publish(ctx, []byte(r.RecordID), payload); err != nil {
			util.Warn("failed to publish audit event",
				zap.String("record_id", r.RecordID),
				zap.Error(err))
			return
		}
	}
}
