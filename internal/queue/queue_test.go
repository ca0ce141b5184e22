package queue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/oconnor0/tutkain/pkg/util/merr"
)

type QueueSuite struct {
	suite.Suite
}

func (s *QueueSuite) TestFIFO() {
	q := New[int]("test_fifo")
	for i := 0; i < 10; i++ {
		s.NoError(q.Put(i))
	}
	s.Equal(10, q.Len())

	for i := 0; i < 10; i++ {
		v, ok := q.Get()
		s.True(ok)
		s.Equal(i, v)
	}
	s.Equal(0, q.Len())
}

func (s *QueueSuite) TestGetBlocksUntilPut() {
	q := New[string]("test_block")

	done := make(chan string, 1)
	go func() {
		v, ok := q.Get()
		s.True(ok)
		done <- v
	}()

	select {
	case <-done:
		s.FailNow("Get returned before Put")
	case <-time.After(20 * time.Millisecond):
	}

	s.NoError(q.Put("hello"))
	select {
	case v := <-done:
		s.Equal("hello", v)
	case <-time.After(time.Second):
		s.FailNow("Get did not observe Put")
	}
}

func (s *QueueSuite) TestPutAfterClose() {
	q := New[int]("test_put_closed")
	q.Close()

	err := q.Put(1)
	s.Error(err)
	s.ErrorIs(err, merr.ErrQueueClosed)
}

func (s *QueueSuite) TestCloseDrainsRemaining() {
	q := New[int]("test_close_drain")
	s.NoError(q.Put(1))
	s.NoError(q.Put(2))
	q.Close()

	v, ok := q.Get()
	s.True(ok)
	s.Equal(1, v)
	v, ok = q.Get()
	s.True(ok)
	s.Equal(2, v)

	_, ok = q.Get()
	s.False(ok)
}

func (s *QueueSuite) TestCloseWakesWaiters() {
	q := New[int]("test_close_wake")

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok := q.Get()
			s.False(ok)
		}()
	}

	time.Sleep(20 * time.Millisecond)
	q.Close()
	wg.Wait()
}

func (s *QueueSuite) TestDrainDiscards() {
	q := New[int]("test_drain")
	s.NoError(q.Put(1))
	s.NoError(q.Put(2))
	q.Drain()

	_, ok := q.Get()
	s.False(ok)
	s.Equal(0, q.Len())
}

func TestQueue(t *testing.T) {
	suite.Run(t, new(QueueSuite))
}

func TestConcurrentPutGet(t *testing.T) {
	q := New[int]("test_concurrent")

	const producers = 4
	const perProducer = 256

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				assert.NoError(t, q.Put(i))
			}
		}()
	}

	got := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, ok := q.Get()
			if !ok {
				return
			}
			got++
		}
	}()

	wg.Wait()
	q.Close()
	<-done
	assert.Equal(t, producers*perProducer, got)
}
