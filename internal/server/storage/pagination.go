package storage

import (
	"context"
	"fmt"
)

type partsPage struct {
	Parts     []CompletedPart
	Next      int
	Truncated bool
}

type uploadMarker struct {
	Key      string
	UploadID string
}

type uploadsPage struct {
	Uploads   []IncompleteUpload
	Next      uploadMarker
	Truncated bool
}

// collectParts 按 part-number-marker 逐页读取，直到后端返回未截断
// 只保留 partNumber > 0 且 etag 非空的分片
func collectParts(ctx context.Context, fetch func(ctx context.Context, marker int) (partsPage, error)) ([]CompletedPart, error) {
	var out []CompletedPart
	marker := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := fetch(ctx, marker)
		if err != nil {
			return nil, err
		}
		for _, p := range page.Parts {
			etag := cleanETag(p.ETag)
			if p.PartNumber <= 0 || etag == "" {
				continue
			}
			out = append(out, CompletedPart{PartNumber: p.PartNumber, ETag: etag})
		}
		if !page.Truncated {
			return out, nil
		}
		if page.Next <= marker {
			return nil, fmt.Errorf("list parts: marker did not advance past %d", marker)
		}
		marker = page.Next
	}
}

// collectUploads 遍历整个 bucket 的未完成分片上传
func collectUploads(ctx context.Context, fetch func(ctx context.Context, marker uploadMarker) (uploadsPage, error)) ([]IncompleteUpload, error) {
	var out []IncompleteUpload
	var marker uploadMarker
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := fetch(ctx, marker)
		if err != nil {
			return nil, err
		}
		for _, u := range page.Uploads {
			if u.ObjectKey == "" || u.UploadID == "" {
				continue
			}
			out = append(out, u)
		}
		if !page.Truncated {
			return out, nil
		}
		if page.Next == marker {
			return nil, fmt.Errorf("list multipart uploads: marker did not advance past %q/%q", marker.Key, marker.UploadID)
		}
		marker = page.Next
	}
}
