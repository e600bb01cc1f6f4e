package producer

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"github.com/mohsanabbas/kflow/config"
	"github.com/mohsanabbas/kflow/engine/bridge"
	"github.com/mohsanabbas/kflow/engine/topic"
)

func newTestEngine(t *testing.T, cfg config.ProducerOptions) (*Engine, *mocks.AsyncProducer) {
	t.Helper()
	sc := mocks.NewTestConfig()
	mp := mocks.NewAsyncProducer(t, sc)
	if cfg.MaxQueueLength == 0 {
		cfg.MaxQueueLength = 16
	}
	if cfg.WaitForAcksTimeoutMS == 0 {
		cfg.WaitForAcksTimeoutMS = 1000
	}
	if cfg.FlushWaitForAcksTimeoutMS == 0 {
		cfg.FlushWaitForAcksTimeoutMS = 1000
	}
	e := newEngineWithProducer("orders", cfg, mp, Callbacks{}, bridge.NewRegistry())
	return e, mp
}

func TestEngine_DeliveryReport_OpaqueHandleBitIdentical(t *testing.T) {
	e, mp := newTestEngine(t, config.ProducerOptions{})
	defer e.Shutdown(context.Background(), time.Second)
	mp.ExpectInputAndSucceed()

	type handle struct{ n int }
	opaque := &handle{n: 42}

	fut, err := e.Send(context.Background(), []byte("k"), []byte("v"), nil, opaque)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	rep := fut.Get()
	if rep.Err != nil {
		t.Fatalf("unexpected delivery error: %v", rep.Err)
	}
	got, ok := rep.Opaque.(*handle)
	if !ok || got != opaque {
		t.Fatalf("opaque handle not bit-identical: got %#v, want %#v", rep.Opaque, opaque)
	}
}

func TestEngine_DeliveryReport_BrokerFailureSurfacesOnFuture(t *testing.T) {
	e, mp := newTestEngine(t, config.ProducerOptions{})
	defer e.Shutdown(context.Background(), time.Second)
	mp.ExpectInputAndFail(sarama.ErrNotLeaderForPartition)

	fut, err := e.Send(context.Background(), []byte("k"), []byte("v"), nil, nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	rep := fut.Get()
	if rep.Err == nil {
		t.Fatal("expected delivery error for failed produce")
	}
}

func TestEngine_Shutdown_NoFurtherDeliveryCallback(t *testing.T) {
	var calls int32
	e, mp := newTestEngine(t, config.ProducerOptions{})
	e.cb.DeliveryReport = func(topic.DeliveryReport) { atomic.AddInt32(&calls, 1) }
	mp.ExpectInputAndSucceed()

	fut, err := e.Send(context.Background(), []byte("k"), []byte("v"), nil, nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	fut.Get()

	if err := e.Shutdown(context.Background(), time.Second); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	before := atomic.LoadInt32(&calls)

	if _, err := e.Send(context.Background(), []byte("k2"), []byte("v2"), nil, nil); err == nil {
		t.Fatal("expected Send after Shutdown to fail")
	}
	if atomic.LoadInt32(&calls) != before {
		t.Fatal("delivery callback fired after Shutdown returned")
	}
}
