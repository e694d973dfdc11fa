package uploader

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/google/uuid"

	"assetpipe/internal/logger"
	"assetpipe/internal/service/upload"
)

const (
	MinConcurrency     = 1
	MaxConcurrency     = 6
	DefaultConcurrency = 3
	DefaultUpdateQueue = 256
)

var ErrItemNotFound = errors.New("item_not_found")
var ErrInvalidTransition = errors.New("invalid_transition")
var ErrBusy = errors.New("uploads_in_flight")

type Options struct {
	// Concurrency 同时在途的文件数，超出范围会被截断到 1..6
	Concurrency int
	// Manual 为 true 时 Add 不会自动开始，需调用 Start
	Manual bool
	// MultipartThreshold 大于 0 时，不小于该大小的文件走分片上传
	MultipartThreshold int64
	PartConcurrency    int
	UpdateQueue        int
	// OnAllComplete 队列清空且至少有一个成功时调用，每个静止点只调用一次
	OnAllComplete func(items []Item)
}

type eventKind int

const (
	evSigned eventKind = iota
	evProgress
	evTransferred
	evSucceeded
	evFailed
	evCanceled
)

type event struct {
	kind      eventKind
	id        string
	objectKey string
	progress  int
	result    *upload.ConfirmResult
	err       error
}

type entry struct {
	item    Item
	claimed bool
	cancel  context.CancelFunc
}

// Scheduler 有界并发的上传队列。所有状态变更都经过 dispatch，在 mu 下串行执行
type Scheduler struct {
	api       API
	transport Transport
	multipart *MultipartUploader
	threshold int64
	manual    bool
	onAll     func([]Item)
	newID     func() string

	mu      sync.Mutex
	order   []string
	entries map[string]*entry
	limit   int
	active  int
	// pumping 为 true 时新的 pump 请求只置 pending，由当前这一轮补跑
	pumping    bool
	pending    bool
	hadSuccess bool
	idle       chan struct{}

	updates chan Item
}

func NewScheduler(api API, transport Transport, opts Options) *Scheduler {
	if opts.Concurrency == 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.UpdateQueue <= 0 {
		opts.UpdateQueue = DefaultUpdateQueue
	}
	idle := make(chan struct{})
	close(idle)
	return &Scheduler{
		api:       api,
		transport: transport,
		multipart: &MultipartUploader{API: api, Transport: transport, Concurrency: opts.PartConcurrency},
		threshold: opts.MultipartThreshold,
		manual:    opts.Manual,
		onAll:     opts.OnAllComplete,
		newID:     uuid.NewString,
		entries:   map[string]*entry{},
		limit:     clampConcurrency(opts.Concurrency),
		idle:      idle,
		updates:   make(chan Item, opts.UpdateQueue),
	}
}

func clampConcurrency(n int) int {
	return max(MinConcurrency, min(MaxConcurrency, n))
}

// Add 入队，返回每个文件的条目 ID
func (s *Scheduler) Add(files ...File) []string {
	s.mu.Lock()
	ids := make([]string, 0, len(files))
	for _, f := range files {
		id := s.newID()
		s.entries[id] = &entry{item: Item{ID: id, File: f, Status: StatusQueued}}
		s.order = append(s.order, id)
		ids = append(ids, id)
		s.emitLocked(s.entries[id])
	}
	if len(files) > 0 {
		s.markBusyLocked()
	}
	s.mu.Unlock()

	if !s.manual {
		s.pump()
	}
	return ids
}

// Start 手动模式下开始处理队列；已有在途条目时返回 ErrBusy
func (s *Scheduler) Start() error {
	s.mu.Lock()
	busy := s.manual && s.active > 0
	s.mu.Unlock()
	if busy {
		return ErrBusy
	}
	s.pump()
	return nil
}

func (s *Scheduler) SetConcurrency(n int) {
	s.mu.Lock()
	s.limit = clampConcurrency(n)
	s.mu.Unlock()
	s.pump()
}

func (s *Scheduler) Concurrency() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limit
}

// Cancel 排队中的条目直接取消；在途条目通过 context 取消，由流水线落到 canceled
func (s *Scheduler) Cancel(id string) error {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok {
		s.mu.Unlock()
		return ErrItemNotFound
	}
	switch {
	case e.item.Status == StatusQueued:
		e.item.Status = StatusCanceled
		e.item.ErrorMessage = "canceled"
		s.emitLocked(e)
		fire := s.settleLocked()
		s.mu.Unlock()
		fire()
		return nil
	case e.item.Status.Active() && e.cancel != nil:
		cancel := e.cancel
		s.mu.Unlock()
		cancel()
		return nil
	default:
		s.mu.Unlock()
		return ErrInvalidTransition
	}
}

// Retry 只允许从 error 重试：进度清零、错误清空，重新签名
func (s *Scheduler) Retry(id string) error {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok {
		s.mu.Unlock()
		return ErrItemNotFound
	}
	if e.item.Status != StatusError {
		s.mu.Unlock()
		return ErrInvalidTransition
	}
	e.item.Status = StatusQueued
	e.item.Progress = 0
	e.item.ErrorMessage = ""
	e.item.ObjectKey = ""
	e.item.Result = nil
	s.markBusyLocked()
	s.emitLocked(e)
	s.mu.Unlock()

	if !s.manual {
		s.pump()
	}
	return nil
}

// Requeue 已取消的条目以新条目重新入队
func (s *Scheduler) Requeue(id string) (string, error) {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok {
		s.mu.Unlock()
		return "", ErrItemNotFound
	}
	if e.item.Status != StatusCanceled {
		s.mu.Unlock()
		return "", ErrInvalidTransition
	}
	f := e.item.File
	s.mu.Unlock()
	return s.Add(f)[0], nil
}

// ClearFinished 移除 success/error/canceled 条目
func (s *Scheduler) ClearFinished() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.order[:0]
	removed := 0
	for _, id := range s.order {
		e := s.entries[id]
		if e.item.Status.Finished() && !e.claimed {
			delete(s.entries, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return removed
}

func (s *Scheduler) Items() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Scheduler) Item(id string) (Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return Item{}, false
	}
	return e.item, true
}

// Updates 状态快照；消费跟不上时丢弃，调度从不阻塞
func (s *Scheduler) Updates() <-chan Item {
	return s.updates
}

// Wait 等到没有排队或在途的条目；手动模式下需先 Start
func (s *Scheduler) Wait(ctx context.Context) error {
	s.mu.Lock()
	idle := s.idle
	s.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close 取消所有排队与在途条目并等待它们结束
func (s *Scheduler) Close(ctx context.Context) error {
	s.mu.Lock()
	var cancels []context.CancelFunc
	for _, id := range s.order {
		e := s.entries[id]
		if e.item.Status == StatusQueued {
			e.item.Status = StatusCanceled
			e.item.ErrorMessage = "canceled"
			s.emitLocked(e)
		}
		if e.cancel != nil {
			cancels = append(cancels, e.cancel)
		}
	}
	fire := s.settleLocked()
	s.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
	fire()
	return s.Wait(ctx)
}

// pump 填满空闲槽位；并发调用合并为一轮
func (s *Scheduler) pump() {
	s.mu.Lock()
	if s.pumping {
		s.pending = true
		s.mu.Unlock()
		return
	}
	s.pumping = true
	for {
		s.pending = false
		var launch []*entry
		for s.active < s.limit {
			e := s.nextQueuedLocked()
			if e == nil {
				break
			}
			ctx, cancel := context.WithCancel(context.Background())
			e.claimed = true
			e.cancel = cancel
			e.item.Status = StatusSigning
			e.item.Progress = 0
			s.active++
			s.emitLocked(e)
			launch = append(launch, e)
			go s.run(ctx, e.item.ID, e.item.File)
		}
		if len(launch) == 0 && !s.pending {
			break
		}
		s.mu.Unlock()
		s.mu.Lock()
		if !s.pending {
			break
		}
	}
	s.pumping = false
	fire := s.settleLocked()
	s.mu.Unlock()
	fire()
}

func (s *Scheduler) nextQueuedLocked() *entry {
	for _, id := range s.order {
		e := s.entries[id]
		if e.item.Status == StatusQueued && !e.claimed {
			return e
		}
	}
	return nil
}

func (s *Scheduler) run(ctx context.Context, id string, f File) {
	defer s.finish(id)

	res, err := s.process(ctx, id, f)
	switch {
	case err == nil:
		s.dispatch(event{kind: evSucceeded, id: id, result: &res})
	case ctx.Err() != nil || errors.Is(err, ErrCanceled):
		s.dispatch(event{kind: evCanceled, id: id})
	default:
		logger.Debug().Err(err).Str("item", id).Str("file", f.Name).Msg("uploader: item failed")
		s.dispatch(event{kind: evFailed, id: id, err: err})
	}
}

// process sign → transfer → confirm
func (s *Scheduler) process(ctx context.Context, id string, f File) (upload.ConfirmResult, error) {
	if f.Open == nil {
		return upload.ConfirmResult{}, errors.New("file has no content")
	}
	src, err := f.Open()
	if err != nil {
		return upload.ConfirmResult{}, err
	}
	defer src.Close()

	req := upload.SignRequest{
		Purpose:     f.Purpose,
		Filename:    f.Name,
		ContentType: f.ContentType,
		Size:        f.Size,
		ContextID:   f.ContextID,
	}
	progress := func(sent int64) {
		s.dispatch(event{kind: evProgress, id: id, progress: percent(sent, f.Size)})
	}

	var objectKey string
	if s.threshold > 0 && f.Size >= s.threshold {
		objectKey, err = s.multipart.Upload(ctx, req, src, func(key string) {
			s.dispatch(event{kind: evSigned, id: id, objectKey: key})
		}, progress)
		if err != nil {
			return upload.ConfirmResult{}, err
		}
	} else {
		cred, err := s.api.Sign(ctx, req)
		if err != nil {
			return upload.ConfirmResult{}, err
		}
		objectKey = cred.ObjectKey
		s.dispatch(event{kind: evSigned, id: id, objectKey: objectKey})
		body := io.NewSectionReader(src, 0, f.Size)
		if err := s.transport.Upload(ctx, cred, body, f.Size, f.ContentType, progress); err != nil {
			return upload.ConfirmResult{}, err
		}
	}

	s.dispatch(event{kind: evTransferred, id: id})
	return s.api.Confirm(ctx, upload.ConfirmRequest{
		Purpose:     f.Purpose,
		ObjectKey:   objectKey,
		Filename:    f.Name,
		Size:        f.Size,
		ContentType: f.ContentType,
		ContextID:   f.ContextID,
	})
}

// finish 释放槽位、取消认领，然后再触发一轮 pump
func (s *Scheduler) finish(id string) {
	s.mu.Lock()
	s.active--
	if e, ok := s.entries[id]; ok {
		e.claimed = false
		if e.cancel != nil {
			e.cancel()
			e.cancel = nil
		}
	}
	s.mu.Unlock()
	s.pump()
}

// dispatch 唯一修改条目状态的入口；不合法的迁移直接忽略
func (s *Scheduler) dispatch(ev event) {
	s.mu.Lock()
	e, ok := s.entries[ev.id]
	if !ok {
		s.mu.Unlock()
		return
	}
	it := &e.item
	changed := false
	switch ev.kind {
	case evSigned:
		if it.Status == StatusSigning {
			it.Status = StatusUploading
			it.Progress = 0
			it.ObjectKey = ev.objectKey
			changed = true
		}
	case evProgress:
		if it.Status == StatusUploading && ev.progress != it.Progress {
			it.Progress = ev.progress
			changed = true
		}
	case evTransferred:
		if it.Status == StatusUploading {
			it.Status = StatusConfirming
			it.Progress = 100
			changed = true
		}
	case evSucceeded:
		if it.Status.Active() {
			it.Status = StatusSuccess
			it.Result = ev.result
			it.ErrorMessage = ""
			s.hadSuccess = true
			changed = true
		}
	case evFailed:
		if it.Status.Active() {
			it.Status = StatusError
			it.ErrorMessage = ev.err.Error()
			changed = true
		}
	case evCanceled:
		if it.Status.Active() {
			it.Status = StatusCanceled
			it.ErrorMessage = "canceled"
			changed = true
		}
	}
	if changed {
		s.emitLocked(e)
	}
	s.mu.Unlock()
}

// settleLocked 队列静止时关闭 idle，并在有成功条目时返回完成回调
func (s *Scheduler) settleLocked() func() {
	if s.active > 0 || s.pumping {
		return func() {}
	}
	for _, id := range s.order {
		e := s.entries[id]
		if e.item.Status == StatusQueued || e.item.Status.Active() {
			return func() {}
		}
	}
	select {
	case <-s.idle:
	default:
		close(s.idle)
	}
	if !s.hadSuccess || s.onAll == nil {
		s.hadSuccess = false
		return func() {}
	}
	s.hadSuccess = false
	items := s.snapshotLocked()
	cb := s.onAll
	return func() { cb(items) }
}

func (s *Scheduler) markBusyLocked() {
	select {
	case <-s.idle:
		s.idle = make(chan struct{})
	default:
	}
}

func (s *Scheduler) emitLocked(e *entry) {
	select {
	case s.updates <- e.item:
	default:
	}
}

func (s *Scheduler) snapshotLocked() []Item {
	out := make([]Item, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.entries[id].item)
	}
	return out
}

func percent(sent, total int64) int {
	if total <= 0 {
		return 100
	}
	p := int(sent * 100 / total)
	return max(0, min(100, p))
}
