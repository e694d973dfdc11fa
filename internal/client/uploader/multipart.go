package uploader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"assetpipe/internal/server/storage"
	"assetpipe/internal/service/multipart"
	"assetpipe/internal/service/upload"
)

const DefaultPartConcurrency = 3

// ResumableError 会话仍然保留在服务端，可以用 Resume 继续
type ResumableError struct {
	Session multipart.Session
	Err     error
}

func (e *ResumableError) Error() string {
	return fmt.Sprintf("multipart %s: %v", e.Session.UploadID, e.Err)
}

func (e *ResumableError) Unwrap() error {
	return e.Err
}

// MultipartUploader create → sign part → PUT → complete
type MultipartUploader struct {
	API         API
	Transport   Transport
	Concurrency int
}

// Upload 取消时中止会话；其他失败保留会话并返回 *ResumableError
func (u *MultipartUploader) Upload(ctx context.Context, req upload.SignRequest, src io.ReaderAt, started func(objectKey string), progress func(sent int64)) (string, error) {
	sess, err := u.API.CreateMultipart(ctx, req)
	if err != nil {
		return "", err
	}
	if started != nil {
		started(sess.ObjectKey)
	}
	err = u.Resume(ctx, sess, src, req.Size, progress)
	if err == nil {
		return sess.ObjectKey, nil
	}
	if errors.Is(err, ErrCanceled) || ctx.Err() != nil {
		actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		_ = u.API.AbortMultipart(actx, sess.ObjectKey, sess.UploadID)
		return "", err
	}
	return "", &ResumableError{Session: sess, Err: err}
}

// Resume 先查询已上传的分片并跳过，再上传剩余分片并合并
func (u *MultipartUploader) Resume(ctx context.Context, sess multipart.Session, src io.ReaderAt, size int64, progress func(sent int64)) error {
	if sess.PartSize <= 0 {
		return fmt.Errorf("invalid part size %d", sess.PartSize)
	}
	total := int((size + sess.PartSize - 1) / sess.PartSize)
	if total == 0 {
		return errors.New("empty file")
	}
	partLen := func(n int) int64 {
		off := int64(n-1) * sess.PartSize
		return min(sess.PartSize, size-off)
	}

	uploaded, err := u.API.ListParts(ctx, sess.ObjectKey, sess.UploadID)
	if err != nil {
		return err
	}
	etags := make([]string, total+1)
	var sent atomic.Int64
	for _, p := range uploaded {
		if p.PartNumber >= 1 && p.PartNumber <= total && p.ETag != "" {
			etags[p.PartNumber] = p.ETag
			sent.Add(partLen(p.PartNumber))
		}
	}
	report := func(v int64) {
		if progress != nil {
			progress(v)
		}
	}
	report(sent.Load())

	conc := u.Concurrency
	if conc <= 0 {
		conc = DefaultPartConcurrency
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(conc)
	for n := 1; n <= total; n++ {
		if etags[n] != "" {
			continue
		}
		g.Go(func() error {
			part, err := u.API.SignPart(gctx, sess.ObjectKey, sess.UploadID, n)
			if err != nil {
				return err
			}
			length := partLen(n)
			var partSent int64
			etag, err := u.Transport.PutPart(gctx, part.URL, io.NewSectionReader(src, int64(n-1)*sess.PartSize, length), length, func(s int64) {
				delta := s - partSent
				partSent = s
				report(sent.Add(delta))
			})
			if err != nil {
				return fmt.Errorf("part %d: %w", n, err)
			}
			etags[n] = etag
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return canceledOr(ctx, err)
	}

	parts := make([]storage.CompletedPart, 0, total)
	for n := 1; n <= total; n++ {
		parts = append(parts, storage.CompletedPart{PartNumber: n, ETag: etags[n]})
	}
	return u.API.CompleteMultipart(ctx, sess.ObjectKey, sess.UploadID, parts)
}
