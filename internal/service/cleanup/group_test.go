package cleanup

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"assetpipe/internal/server/storage"
)

func TestGroupByDirectory(t *testing.T) {
	t.Parallel()

	groups := GroupByDirectory([]storage.IncompleteUpload{
		{ObjectKey: "a/c/3.jpg", UploadID: "3"},
		{ObjectKey: "a/b/1.jpg", UploadID: "1"},
		{ObjectKey: "a/b/2.jpg", UploadID: "2"},
	})

	var dirs []string
	var counts []int
	for _, g := range groups {
		dirs = append(dirs, g.Directory)
		counts = append(counts, g.Count)
	}
	assert.Equal(t, []string{"a/b", "a/c"}, dirs)
	assert.Equal(t, []int{2, 1}, counts)
	assert.Equal(t, "1", groups[0].Uploads[0].UploadID)
}

func TestGroupByDirectory_EdgeCases(t *testing.T) {
	t.Parallel()

	assert.Empty(t, GroupByDirectory(nil))

	groups := GroupByDirectory([]storage.IncompleteUpload{{ObjectKey: "root.jpg"}, {ObjectKey: "x/y.jpg"}})
	assert.Equal(t, "", groups[0].Directory)
	assert.Equal(t, "x", groups[1].Directory)
}
