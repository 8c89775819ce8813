package cursor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/animap/harvester/internal/domain"
)

func TestOffset_CommitAndSkip(t *testing.T) {
	o := NewOffset(0, 20, nil)

	o.Commit(0)
	assert.Equal(t, 20, o.Next(0))

	o.Skip(20)
	o.Skip(20)
	assert.Equal(t, []int{20}, o.Pending)
	assert.Equal(t, 20, o.Position, "a failed position is left behind in Pending")

	o.Commit(40)
	assert.Equal(t, 40, o.Position)

	o.Skip(0)
	assert.Equal(t, 40, o.Position, "skipping an earlier position never moves backwards")
	assert.Equal(t, []int{0, 20}, o.Pending)
	o.Resolve(0)

	o.Commit(20)
	assert.Equal(t, 40, o.Position, "committing a retried position never moves backwards")
	assert.Empty(t, o.Pending)
}

func TestOffset_RetryIsACopy(t *testing.T) {
	o := NewOffset(5, 1, []int{3, 2})
	retry := o.Retry()
	o.Resolve(2)

	assert.Equal(t, []int{3, 2}, retry)
	assert.Equal(t, []int{3}, o.Pending)
}

func TestNewOffset_StepFloor(t *testing.T) {
	assert.Equal(t, 1, NewOffset(1, 0, nil).Step)
}

func TestIDList_Walk(t *testing.T) {
	live := []domain.Identifier{"30", "4", "100", "4", "12"}
	l := NewIDList(live, 0)

	// mutating the input must not affect the snapshot
	live[0] = "999"

	assert.Equal(t, 4, l.Len())
	assert.Equal(t, []domain.Identifier{"4", "12"}, l.Next(2))
	l.Advance(2)
	assert.Equal(t, []domain.Identifier{"30", "100"}, l.Next(10))
	assert.False(t, l.Done())
	l.Advance(10)
	assert.True(t, l.Done())
	assert.Equal(t, 4, l.Index())
	assert.Empty(t, l.Next(5))
}

func TestIDList_ResumeIndex(t *testing.T) {
	ids := []domain.Identifier{"1", "2", "3"}

	l := NewIDList(ids, 2)
	assert.Equal(t, []domain.Identifier{"3"}, l.Next(5))

	assert.True(t, NewIDList(ids, 10).Done())
	assert.Equal(t, 0, NewIDList(ids, -1).Index())
}
