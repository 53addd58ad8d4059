package worker

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"

	"github.com/rl1809/order-placement/internal/core/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingCanceller struct {
	mu        sync.Mutex
	cancelled []string
	failFor   string
}

func (r *recordingCanceller) CancelOrder(_ context.Context, orderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if orderID == r.failFor {
		return errors.New("store unavailable")
	}
	r.cancelled = append(r.cancelled, orderID)
	return nil
}

func TestReconciler_CancelsEveryQueuedOrder(t *testing.T) {
	queue := make(chan domain.Order, 10)
	canceller := &recordingCanceller{}
	r := NewReconciler(queue, canceller, 3, nil)
	r.Start()

	for _, id := range []string{"o1", "o2", "o3", "o4"} {
		queue <- domain.Order{ID: id}
	}
	close(queue)
	r.Wait()

	assert.ElementsMatch(t, []string{"o1", "o2", "o3", "o4"}, canceller.cancelled)
}

func TestReconciler_KeepsGoingAfterFailure(t *testing.T) {
	queue := make(chan domain.Order, 2)
	canceller := &recordingCanceller{failFor: "bad"}
	r := NewReconciler(queue, canceller, 0, nil)
	r.Start()

	queue <- domain.Order{ID: "bad"}
	queue <- domain.Order{ID: "good"}
	close(queue)
	r.Wait()

	assert.Equal(t, []string{"good"}, canceller.cancelled)
}
