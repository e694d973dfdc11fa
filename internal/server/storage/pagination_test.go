package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectParts_FollowsMarkersAndFiltersMalformed(t *testing.T) {
	t.Parallel()

	pages := map[int]partsPage{
		0: {
			Parts: []CompletedPart{
				{PartNumber: 1, ETag: `"a"`},
				{PartNumber: 0, ETag: "zero"},
				{PartNumber: 2, ETag: ""},
			},
			Next:      2,
			Truncated: true,
		},
		2: {
			Parts:     []CompletedPart{{PartNumber: 3, ETag: "c"}, {PartNumber: -1, ETag: "neg"}},
			Next:      3,
			Truncated: true,
		},
		3: {
			Parts: []CompletedPart{{PartNumber: 4, ETag: " d "}},
		},
	}
	var markers []int
	parts, err := collectParts(context.Background(), func(ctx context.Context, marker int) (partsPage, error) {
		markers = append(markers, marker)
		return pages[marker], nil
	})
	require.NoError(t, err)

	assert.Equal(t, []int{0, 2, 3}, markers)
	assert.Equal(t, []CompletedPart{
		{PartNumber: 1, ETag: "a"},
		{PartNumber: 3, ETag: "c"},
		{PartNumber: 4, ETag: "d"},
	}, parts)
}

func TestCollectParts_StuckMarker(t *testing.T) {
	t.Parallel()

	_, err := collectParts(context.Background(), func(ctx context.Context, marker int) (partsPage, error) {
		return partsPage{Truncated: true, Next: marker}, nil
	})
	assert.Error(t, err)
}

func TestCollectParts_PropagatesError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	_, err := collectParts(context.Background(), func(ctx context.Context, marker int) (partsPage, error) {
		return partsPage{}, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestCollectUploads_AccumulatesAllPages(t *testing.T) {
	t.Parallel()

	now := time.Now()
	calls := 0
	uploads, err := collectUploads(context.Background(), func(ctx context.Context, m uploadMarker) (uploadsPage, error) {
		calls++
		switch m {
		case uploadMarker{}:
			return uploadsPage{
				Uploads:   []IncompleteUpload{{ObjectKey: "a/1.jpg", UploadID: "u1", InitiatedAt: now}},
				Next:      uploadMarker{Key: "a/1.jpg", UploadID: "u1"},
				Truncated: true,
			}, nil
		case uploadMarker{Key: "a/1.jpg", UploadID: "u1"}:
			return uploadsPage{
				Uploads: []IncompleteUpload{
					{ObjectKey: "b/2.jpg", UploadID: "u2", InitiatedAt: now},
					{ObjectKey: "", UploadID: "broken"},
				},
			}, nil
		}
		t.Fatalf("unexpected marker %+v", m)
		return uploadsPage{}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	require.Len(t, uploads, 2)
	assert.Equal(t, "u1", uploads[0].UploadID)
	assert.Equal(t, "u2", uploads[1].UploadID)
}

func TestCollectUploads_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := collectUploads(ctx, func(ctx context.Context, m uploadMarker) (uploadsPage, error) {
		return uploadsPage{}, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPublicURL(t *testing.T) {
	t.Parallel()

	u, err := publicURL("https://cdn.example.com/media", "assets/2026/10/id-my photo.jpg")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/media/assets/2026/10/id-my%20photo.jpg", u)

	_, err = publicURL("", "a.jpg")
	assert.ErrorIs(t, err, ErrNoPublicDomain)
}

func TestDeleteEach_JoinsErrors(t *testing.T) {
	t.Parallel()

	var seen []string
	err := deleteEach(context.Background(), []string{"a", "b", "c"}, func(ctx context.Context, k string) error {
		seen = append(seen, k)
		if k == "b" {
			return errors.New("b failed")
		}
		return nil
	})
	assert.Equal(t, []string{"a", "b", "c"}, seen)
	assert.EqualError(t, err, "b failed")
}
