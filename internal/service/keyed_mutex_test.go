package service

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	k := NewKeyedMutex()
	var inflight, maxSeen int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("chat-1")
			n := atomic.AddInt32(&inflight, 1)
			for {
				m := atomic.LoadInt32(&maxSeen)
				if n <= m || atomic.CompareAndSwapInt32(&maxSeen, m, n) {
					break
				}
			}
			atomic.AddInt32(&inflight, -1)
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxSeen)
	assert.Zero(t, k.Len(), "无人持有时应释放锁对象")
}

func TestKeyedMutex_DifferentKeysDoNotBlock(t *testing.T) {
	k := NewKeyedMutex()
	unlockA := k.Lock("a")
	done := make(chan struct{})
	go func() {
		unlockB := k.Lock("b")
		unlockB()
		close(done)
	}()
	<-done
	assert.Equal(t, 1, k.Len())
	unlockA()
	assert.Zero(t, k.Len())
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, CodeInvalidEvent, ErrorCode(ErrEmptyContent))
	assert.Equal(t, CodeChatNotFound, ErrorCode(ErrChatNotFound))
	assert.Equal(t, CodeForbidden, ErrorCode(ErrNotParticipant))
	assert.Equal(t, CodeEraseForbidden, ErrorCode(ErrEraseForbidden))
	assert.Equal(t, CodeInternal, ErrorCode(ErrInternalServer))
}
