package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"marketplace-gateway/internal/model"
)

func TestLogger_RecordNeverBlocks(t *testing.T) {
	l := NewLogger(nil, nil)
	defer l.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Well past queueSize; the excess must be dropped, not block.
		for i := 0; i < queueSize*2; i++ {
			l.Record(model.AuditLogRecord{Method: "GET", Path: "/api/v1/apps"})
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Record blocked on a full queue")
	}
}

func TestLogger_RecordStampsDefaults(t *testing.T) {
	// No run loop; the test owns the queue.
	l := &Logger{queue: make(chan model.AuditLogRecord, 1)}

	l.Record(model.AuditLogRecord{Method: "GET", Path: "/health"})

	got := <-l.queue
	assert.NotEmpty(t, got.RecordID)
	assert.False(t, got.CreatedAt.IsZero())
	assert.Equal(t, "/health", got.Path)
}

func TestLogger_CloseIsIdempotent(t *testing.T) {
	l := NewLogger(nil, nil)
	l.Record(model.AuditLogRecord{Method: "GET", Path: "/api/v1/apps"})
	l.Close()
	l.Close()
}
