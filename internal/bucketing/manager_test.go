package bucketing

import (
	"sync"
	"testing"
)

func TestPhoneBucketStable(t *testing.T) {
	bm := NewBucketingManager(64)

	first := bm.PhoneBucket("09123456789")
	for i := 0; i < 100; i++ {
		if got := bm.PhoneBucket("09123456789"); got != first {
			t.Fatalf("bucket changed between calls: %d != %d", got, first)
		}
	}
}

func TestPhoneBucketRange(t *testing.T) {
	bm := NewBucketingManager(16)

	phones := []string{"09123456789", "09000000000", "09999999999", "09351234567"}
	for _, phone := range phones {
		bucket := bm.PhoneBucket(phone)
		if bucket < 0 || bucket >= 16 {
			t.Errorf("bucket %d for %s outside [0, 16)", bucket, phone)
		}
	}
}

func TestDefaultBucketCount(t *testing.T) {
	bm := NewBucketingManager(0)
	if bm.Buckets() != defaultPhoneBuckets {
		t.Errorf("expected default bucket count %d, got %d", defaultPhoneBuckets, bm.Buckets())
	}
}

func TestPhoneBucketConcurrent(t *testing.T) {
	bm := NewBucketingManager(64)
	want := bm.PhoneBucket("09123456789")

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if got := bm.PhoneBucket("09123456789"); got != want {
					t.Errorf("concurrent bucket mismatch: %d != %d", got, want)
					return
				}
			}
		}()
	}
	wg.Wait()
}
