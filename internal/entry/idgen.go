package entry

import (
	"sync"
	"time"
)

// IDGenerator は記事IDを発行する。
// IDは現在時刻のマイクロ秒値で、同一プロセス内では厳密に単調増加する。
// 既存の記事より大きいIDを保証するには、起動時にAdvanceで最大IDを渡す。
// 複数のプロセスから同時に発行することは想定しない。
type IDGenerator struct {
	mu   sync.Mutex
	last uint64
	now  func() time.Time
}

// NewIDGenerator はIDGeneratorを生成する。
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{now: time.Now}
}

// Advance は以後発行するIDがfloorより大きくなるようにする。
func (g *IDGenerator) Advance(floor uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if floor > g.last {
		g.last = floor
	}
}

// Next は次のIDを返す。
func (g *IDGenerator) Next() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := uint64(g.now().UnixMicro())
	if id <= g.last {
		id = g.last + 1
	}
	g.last = id
	return id
}
