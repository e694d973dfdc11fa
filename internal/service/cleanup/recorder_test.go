package cleanup

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRecorder_KeepsNewest(t *testing.T) {
	t.Parallel()

	rec := NewMemoryRecorder(3)
	for i := 0; i < 5; i++ {
		require.NoError(t, rec.Record(context.Background(), Run{ID: fmt.Sprint(i)}))
	}

	runs, err := rec.List(context.Background(), 0)
	require.NoError(t, err)
	var ids []string
	for _, r := range runs {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"4", "3", "2"}, ids)

	runs, err = rec.List(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "4", runs[0].ID)
}
