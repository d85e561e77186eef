package pubsub

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// dedup 基于双代布隆过滤器的消息去重。
// 当前代写满后降为上一代，上一代被整体淘汰，
// 内存占用有界且最近两代内的消息 ID 不会被重复投递。
type dedup struct {
	mu       sync.Mutex
	current  *bloom.BloomFilter
	previous *bloom.BloomFilter
	adds     uint
	capacity uint
	fp       float64
}

func newDedup(capacity uint, fp float64) *dedup {
	return &dedup{
		current:  bloom.NewWithEstimates(capacity, fp),
		previous: bloom.NewWithEstimates(capacity, fp),
		capacity: capacity,
		fp:       fp,
	}
}

// seen 判断消息 ID 是否已处理过，未处理过时记录并返回 false
func (d *dedup) seen(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current.TestString(id) || d.previous.TestString(id) {
		return true
	}
	d.current.AddString(id)
	d.adds++
	if d.adds >= d.capacity {
		d.previous = d.current
		d.current = bloom.NewWithEstimates(d.capacity, d.fp)
		d.adds = 0
	}
	return false
}
