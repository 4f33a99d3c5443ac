package maintenance

import "testing"

func TestFreezeThawIsMultiset(t *testing.T) {
	f := NewBucketFreezer()
	f.FreezeBucket(1)
	f.FreezeBucket(1)
	if !f.IsFrozen(1) {
		t.Fatalf("expected bucket 1 to be frozen")
	}
	f.ThawBucket(1)
	if !f.IsFrozen(1) {
		t.Fatalf("expected bucket 1 to remain frozen after one of two thaws")
	}
	f.ThawBucket(1)
	if f.IsFrozen(1) {
		t.Fatalf("expected bucket 1 to be unfrozen after both thaws")
	}
}

func TestAcquireExclusiveFailsWhileFrozen(t *testing.T) {
	f := NewBucketFreezer()
	f.FreezeBucket(2)

	_, ok := f.AcquireExclusiveBucket(2, nil)
	if ok {
		t.Fatalf("exclusive acquisition should fail while bucket is frozen")
	}
}

func TestAcquireExclusiveSucceedsWhenUnfrozen(t *testing.T) {
	f := NewBucketFreezer()
	guard, ok := f.AcquireExclusiveBucket(3, nil)
	if !ok {
		t.Fatalf("exclusive acquisition should succeed on an unfrozen bucket")
	}
	guard.Release()

	if _, ok := f.AcquireExclusiveBucket(3, nil); !ok {
		t.Fatalf("exclusive acquisition should succeed again after release")
	}
}

func TestThawNotifiesBlockedJobsOnceCountReachesZero(t *testing.T) {
	f := NewBucketFreezer()
	f.FreezeBucket(4)

	notified := false
	f.AcquireExclusiveBucket(4, func(bool) { notified = true })
	if notified {
		t.Fatalf("should not notify before thaw")
	}
	f.ThawBucket(4)
	if !notified {
		t.Fatalf("expected blocked acquirer to be notified once count reaches zero")
	}
}
