package gc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chernykhds/phantomuserland/internal/cellfmt"
	"github.com/chernykhds/phantomuserland/pkg/apperr"
)

func TestMarkAreaPushPopLIFO(t *testing.T) {
	area := newMarkArea(4)
	area.push(10)
	area.push(20)

	ref, ok := area.pop()
	require.True(t, ok)
	assert.Equal(t, cellfmt.CellRef(20), ref)

	ref, ok = area.pop()
	require.True(t, ok)
	assert.Equal(t, cellfmt.CellRef(10), ref)

	_, ok = area.pop()
	assert.False(t, ok)
	assert.True(t, area.empty())
}

func TestMarkAreaOverflowPanics(t *testing.T) {
	area := newMarkArea(2)
	area.push(1)
	area.push(2)

	var recovered any
	func() {
		defer func() { recovered = recover() }()
		area.push(3)
	}()

	require.NotNil(t, recovered)
	appErr, ok := recovered.(*apperr.AppError)
	require.True(t, ok, "expected *apperr.AppError, got %T", recovered)
	assert.True(t, apperr.IsMarkAreaOverflow(appErr))
}

func TestNewMarkAreaDefaultsCapacity(t *testing.T) {
	area := newMarkArea(0)
	assert.Equal(t, DefaultMarkAreaCapacity, area.capacity)
}
