package cleanup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"assetpipe/internal/config"
	"assetpipe/internal/logger"
	"assetpipe/internal/server/metrics"
)

var ErrAlreadyRunning = errors.New("automation_already_running")
var ErrNoRuleEnabled = errors.New("no_rule_enabled")
var ErrInvalidConfig = errors.New("invalid_automation_config")

// Config 两条规则共用中止会话这一操作，但各自有开关和阈值
type Config struct {
	CleanupEnabled   bool
	CleanupThreshold time.Duration
	AbortEnabled     bool
	AbortThreshold   time.Duration
	Interval         time.Duration
}

func ConfigFromSettings(s config.AutomationSettings) Config {
	return Config{
		CleanupEnabled:   s.CleanupEnabled,
		CleanupThreshold: s.CleanupThreshold,
		AbortEnabled:     s.AbortEnabled,
		AbortThreshold:   s.AbortThreshold,
		Interval:         s.Interval,
	}
}

func (c Config) AnyEnabled() bool {
	return c.CleanupEnabled || c.AbortEnabled
}

// Validate 启用的规则必须有正的阈值，否则会中止正在上传的会话
func (c Config) Validate() error {
	// 规则全部关闭时不会调度，间隔无意义
	if c.AnyEnabled() && c.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive", ErrInvalidConfig)
	}
	if c.CleanupEnabled && c.CleanupThreshold <= 0 {
		return fmt.Errorf("%w: cleanup threshold must be positive", ErrInvalidConfig)
	}
	if c.AbortEnabled && c.AbortThreshold <= 0 {
		return fmt.Errorf("%w: abort threshold must be positive", ErrInvalidConfig)
	}
	return nil
}

type Status struct {
	Config
	IsRunning bool
	LastRun   *Run
	NextRunAt *time.Time
}

// Automation 定时执行清理规则。Start 会立即执行一次，之后每个 Interval 执行一次
type Automation struct {
	engine *Engine
	locker Locker

	mu      sync.Mutex
	cfg     Config
	cancel  context.CancelFunc
	done    chan struct{}
	lastRun *Run
	nextRun time.Time

	reset chan struct{}
}

func NewAutomation(engine *Engine, locker Locker, cfg Config) *Automation {
	if locker == nil {
		locker = &LocalLocker{}
	}
	return &Automation{
		engine: engine,
		locker: locker,
		cfg:    cfg,
		reset:  make(chan struct{}, 1),
	}
}

// Start 启动定时循环，循环在 Stop 或 ctx 结束时退出
func (a *Automation) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		return ErrAlreadyRunning
	}
	if err := a.cfg.Validate(); err != nil {
		return err
	}
	if !a.cfg.AnyEnabled() {
		return ErrNoRuleEnabled
	}
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	a.cancel = cancel
	a.done = done
	metrics.AutomationRunning.Set(1)
	go a.loop(loopCtx, done)
	logger.Info().Dur("interval", a.cfg.Interval).Msg("cleanup: automation started")
	return nil
}

// Stop 取消定时器并等待正在执行的一轮结束；未运行时为空操作
func (a *Automation) Stop() {
	a.mu.Lock()
	cancel, done := a.cancel, a.done
	a.cancel, a.done = nil, nil
	a.nextRun = time.Time{}
	a.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	metrics.AutomationRunning.Set(0)
	logger.Info().Msg("cleanup: automation stopped")
}

// Update 替换配置；所有规则都被关闭时停止循环，间隔变化时从现在重新计时
func (a *Automation) Update(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.mu.Lock()
	a.cfg = cfg
	running := a.cancel != nil
	a.mu.Unlock()

	if !running {
		return nil
	}
	if !cfg.AnyEnabled() {
		a.Stop()
		return nil
	}
	select {
	case a.reset <- struct{}{}:
	default:
	}
	return nil
}

func (a *Automation) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	st := Status{Config: a.cfg, IsRunning: a.cancel != nil}
	if a.lastRun != nil {
		run := *a.lastRun
		st.LastRun = &run
	}
	if st.IsRunning && !a.nextRun.IsZero() {
		next := a.nextRun
		st.NextRunAt = &next
	}
	return st
}

func (a *Automation) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cancel != nil
}

func (a *Automation) loop(ctx context.Context, done chan struct{}) {
	defer func() {
		a.mu.Lock()
		// ctx 被外部取消而非 Stop 时也要清理运行状态
		if a.done == done {
			a.cancel, a.done = nil, nil
			a.nextRun = time.Time{}
			metrics.AutomationRunning.Set(0)
		}
		a.mu.Unlock()
		close(done)
	}()

	a.tick(ctx)
	for {
		interval := a.interval()
		timer := time.NewTimer(interval)
		a.mu.Lock()
		a.nextRun = time.Now().Add(interval)
		a.mu.Unlock()
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-a.reset:
			timer.Stop()
		case <-timer.C:
			a.tick(ctx)
		}
	}
}

func (a *Automation) interval() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg.Interval
}

// tick 执行一轮：先 cleanup 规则，再 abort 规则，每条规则各自重新列出会话
func (a *Automation) tick(ctx context.Context) {
	a.mu.Lock()
	cfg := a.cfg
	a.mu.Unlock()

	unlock, ok, err := a.locker.TryLock(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("cleanup: acquire lock failed, skipping tick")
		return
	}
	if !ok {
		logger.Debug().Msg("cleanup: another instance holds the lock, skipping tick")
		return
	}
	defer unlock()

	if cfg.CleanupEnabled {
		a.runRule(ctx, cfg.CleanupThreshold, TriggerCleanupRule)
	}
	if cfg.AbortEnabled && ctx.Err() == nil {
		a.runRule(ctx, cfg.AbortThreshold, TriggerAbortRule)
	}
}

func (a *Automation) runRule(ctx context.Context, threshold time.Duration, trigger Trigger) {
	run, err := a.engine.run(ctx, threshold, trigger)
	if err != nil {
		logger.Warn().Err(err).Str("trigger", string(trigger)).Msg("cleanup: scheduled run failed")
	}
	a.mu.Lock()
	a.lastRun = &run
	a.mu.Unlock()
}
