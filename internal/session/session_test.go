package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSession_AppendKeepsCaptureOrder(t *testing.T) {
	s := New(10)
	for _, n := range []int{3, 1, 2, 2} {
		s.Append(Page{Number: n})
	}

	var got []int
	for _, p := range s.Pages() {
		got = append(got, p.Number)
	}
	assert.Equal(t, []int{3, 1, 2, 2}, got)
	assert.Equal(t, 4, s.Len())
}

func TestSession_PagesIsACopy(t *testing.T) {
	s := New(0)
	s.Append(Page{Number: 1})
	pages := s.Pages()
	pages[0].Number = 99
	assert.Equal(t, 1, s.Pages()[0].Number)
}

func TestSession_ClearLeavesRunningFlag(t *testing.T) {
	s := New(5)
	assert.True(t, s.TryStart())
	s.Append(Page{Number: 1})
	s.Append(Page{Number: 2})

	s.Clear()

	assert.Zero(t, s.Len())
	assert.True(t, s.Running())
}

func TestSession_TryStartGuards(t *testing.T) {
	s := New(5)
	assert.True(t, s.TryStart())
	assert.False(t, s.TryStart())
	s.Stop()
	assert.False(t, s.Running())
	assert.True(t, s.TryStart())
}

func TestSession_Limit(t *testing.T) {
	assert.Equal(t, DefaultLimit, New(0).Limit())
	assert.Equal(t, DefaultLimit, New(-3).Limit())

	s := New(7)
	assert.Equal(t, 7, s.Limit())
	s.SetLimit(12)
	assert.Equal(t, 12, s.Limit())
}
