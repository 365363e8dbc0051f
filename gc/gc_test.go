package gc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type recorder struct {
	calls []string
}

func (r *recorder) Step()   { r.calls = append(r.calls, "step") }
func (r *recorder) FullGC() { r.calls = append(r.calls, "full") }

func (r *recorder) InvalidateAll() int {
	r.calls = append(r.calls, "invalidate")
	return 3
}

func TestScheduler_Tick(t *testing.T) {
	r := &recorder{}
	s := NewScheduler(r, nil, time.Second, nil)

	assert.False(t, s.Tick(200*time.Millisecond))
	assert.False(t, s.Tick(600*time.Millisecond))
	assert.True(t, s.Tick(1100*time.Millisecond))
	assert.Equal(t, []string{"step"}, r.calls)
	assert.Equal(t, 1, s.Steps())
}

func TestScheduler_IntervalIsStrict(t *testing.T) {
	r := &recorder{}
	s := NewScheduler(r, nil, time.Second, nil)

	assert.False(t, s.Tick(time.Second))
	assert.True(t, s.Tick(time.Second+time.Nanosecond))
	assert.False(t, s.Tick(2*time.Second))
	assert.True(t, s.Tick(3*time.Second))
	assert.Equal(t, 2, s.Steps())
}

func TestScheduler_ForceFull(t *testing.T) {
	r := &recorder{}
	s := NewScheduler(r, r, time.Second, nil)

	s.ForceFull()
	assert.Equal(t, []string{"invalidate", "full"}, r.calls)
	assert.Equal(t, 1, s.FullCollections())
	assert.Equal(t, 0, s.Steps())
}

func TestScheduler_ForceFullWithoutInvalidator(t *testing.T) {
	r := &recorder{}
	s := NewScheduler(r, nil, time.Second, nil)
	s.ForceFull()
	assert.Equal(t, []string{"full"}, r.calls)
}
