package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"clinic-workers/internal/common/logger"
)

func TestNilObservability_IsSafe(t *testing.T) {
	var o *Observability
	ctx := context.Background()

	assert.NotPanics(t, func() {
		spanCtx, span := o.StartSpan(ctx, "noop")
		span.End()
		o.RecordJobProcessed(spanCtx, "allocate-code", "completed")
		o.RecordJobDuration(spanCtx, "allocate-code", time.Millisecond, "completed")
		o.RecordNotification(spanCtx, "EVENT_CONFIRMED", "email", "sent")
		o.RecordDispatchDuration(spanCtx, "email", time.Millisecond)
		o.RecordAllocation(spanCtx, "patient")
		o.Shutdown()
	})
}

func TestNew_WithoutJaeger(t *testing.T) {
	o := New("clinic-workers-test", "", logger.NewTestLogger(t))
	defer o.Shutdown()

	assert.NotNil(t, o.meterProvider)
	assert.Nil(t, o.tracerProvider)

	ctx, span := o.StartSpan(context.Background(), "dispatch")
	defer span.End()
	o.RecordNotification(ctx, "EVENT_CONFIRMED", "log", "sent")
}
