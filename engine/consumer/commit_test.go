package consumer

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/IBM/sarama"

	"github.com/mohsanabbas/kflow/config"
	"github.com/mohsanabbas/kflow/engine/topic"
)

type fakeSession struct {
	commits int32
}

func (f *fakeSession) Claims() map[string][]int32                                       { return nil }
func (f *fakeSession) MemberID() string                                                 { return "test-member" }
func (f *fakeSession) GenerationID() int32                                              { return 1 }
func (f *fakeSession) MarkOffset(string, int32, int64, string)                          {}
func (f *fakeSession) Commit()                                                          { atomic.AddInt32(&f.commits, 1) }
func (f *fakeSession) ResetOffset(string, int32, int64, string)                         {}
func (f *fakeSession) MarkMessage(*sarama.ConsumerMessage, string)                       {}
func (f *fakeSession) Context() context.Context                                         { return context.Background() }

func TestCommitter_RejectsUnobservedOffsetsByDefault(t *testing.T) {
	c := newCommitter(config.OffsetPersistSettings{Strategy: config.StrategyCommit, Mode: config.ModeSync, Exec: config.ExecLocal}, nil, nil, nil)
	sess := &fakeSession{}

	part := topic.Partition{Topic: "orders", Partition: 0}
	if err := c.Commit(context.Background(), sess, []topic.Partition{part}); err == nil {
		t.Fatal("expected InvalidOffset error for a partition never observed")
	}

	c.observe(part, 41)
	if err := c.Commit(context.Background(), sess, []topic.Partition{part}); err != nil {
		t.Fatalf("expected commit to succeed once observed, got %v", err)
	}
	if sess.commits != 1 {
		t.Fatalf("expected exactly one sess.Commit() call, got %d", sess.commits)
	}
}

func TestCommitter_AllowNonStoredOffsets(t *testing.T) {
	c := newCommitter(config.OffsetPersistSettings{Strategy: config.StrategyCommit, AllowNonStoredOffsets: true}, nil, nil, nil)
	sess := &fakeSession{}

	part := topic.Partition{Topic: "orders", Partition: 3}
	if err := c.Commit(context.Background(), sess, []topic.Partition{part}); err != nil {
		t.Fatalf("expected commit to succeed with allowNonStoredOffsets=true, got %v", err)
	}
}

func TestCommitter_StoreStrategyDoesNotCallSessCommit(t *testing.T) {
	c := newCommitter(config.OffsetPersistSettings{Strategy: config.StrategyStore, AllowNonStoredOffsets: true}, nil, nil, nil)
	sess := &fakeSession{}

	if err := c.Commit(context.Background(), sess, []topic.Partition{{Topic: "orders", Partition: 0}}); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if sess.commits != 0 {
		t.Fatalf("store strategy must not call sess.Commit(), called %d times", sess.commits)
	}
}

func TestCommitter_HaltsAfterUnresolvedCommitError(t *testing.T) {
	part := topic.Partition{Topic: "orders", Partition: 0}
	onCommit := func(breakdown map[topic.Partition]error) {
		breakdown[part] = context.DeadlineExceeded
	}
	onCommitErr := func(map[topic.Partition]error) bool { return false } // do not retry

	c := newCommitter(config.OffsetPersistSettings{Strategy: config.StrategyCommit, AllowNonStoredOffsets: true}, nil, onCommit, onCommitErr)
	sess := &fakeSession{}

	if err := c.Commit(context.Background(), sess, []topic.Partition{part}); err != nil {
		t.Fatalf("first commit should not itself fail: %v", err)
	}
	if err := c.Commit(context.Background(), sess, []topic.Partition{part}); err == nil {
		t.Fatal("expected commit to be halted after OffsetCommitError returned false")
	}
}

func TestCommitter_SurfacesGroupErrorIntoBreakdown(t *testing.T) {
	groupErrs := make(chan error, 1)
	groupErrs <- context.DeadlineExceeded

	var got map[topic.Partition]error
	onCommit := func(breakdown map[topic.Partition]error) { got = breakdown }

	c := newCommitter(config.OffsetPersistSettings{Strategy: config.StrategyCommit, AllowNonStoredOffsets: true}, groupErrs, onCommit, nil)
	sess := &fakeSession{}
	part := topic.Partition{Topic: "orders", Partition: 0}

	if err := c.Commit(context.Background(), sess, []topic.Partition{part}); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if got[part] == nil {
		t.Fatal("expected the group's queued error to surface in the commit breakdown")
	}
}
