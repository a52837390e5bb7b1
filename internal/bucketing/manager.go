package bucketing

import (
	"hash"
	"sync"

	"github.com/spaolacci/murmur3"
)

const defaultPhoneBuckets = 64

// BucketingManager maps phone numbers onto a fixed set of partition buckets
// so the accounts table spreads evenly across the cluster.
type BucketingManager struct {
	phoneBuckets int
	hasherPool   sync.Pool
}

func NewBucketingManager(phoneBuckets int) *BucketingManager {
	if phoneBuckets <= 0 {
		phoneBuckets = defaultPhoneBuckets
	}

	bm := &BucketingManager{
		phoneBuckets: phoneBuckets,
	}

	// Pool of hash functions to avoid allocation overhead
	bm.hasherPool = sync.Pool{
		New: func() interface{} {
			return murmur3.New64()
		},
	}

	return bm
}

// PhoneBucket returns a consistent bucket for a phone number (0 to buckets-1).
func (bm *BucketingManager) PhoneBucket(phone string) int {
	hasher := bm.hasherPool.Get().(hash.Hash64)
	defer bm.hasherPool.Put(hasher)

	hasher.Reset()
	_, _ = hasher.Write([]byte(phone))
	sum := hasher.Sum64()

	return int(sum % uint64(bm.phoneBuckets))
}

// Buckets returns the configured bucket count.
func (bm *BucketingManager) Buckets() int {
	return bm.phoneBuckets
}
