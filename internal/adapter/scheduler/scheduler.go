package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// JobFunc представляет функцию задачи планировщика.
type JobFunc func(ctx context.Context) error

// OverlapPolicy определяет политику обработки перекрывающихся выполнений задач.
type OverlapPolicy int

const (
	// AllowOverlap разрешает параллельное выполнение задач.
	AllowOverlap OverlapPolicy = iota
	// SkipIfRunning пропускает выполнение, если задача уже запущена (по умолчанию для Register).
	SkipIfRunning
	// DelayIfRunning ждет завершения предыдущего выполнения.
	DelayIfRunning
)

// ErrDuplicateJob возвращается при повторной регистрации имени.
var ErrDuplicateJob = errors.New("scheduler: job already registered")

// JobOptions содержит опции для настройки задач.
type JobOptions struct {
	// Name - уникальное имя задачи, попадает в логи и метрики.
	Name string
	// Timeout - максимальное время выполнения задачи (необязательно).
	Timeout time.Duration
	// OverlapPolicy - политика обработки перекрывающихся выполнений.
	OverlapPolicy OverlapPolicy
}

// JobHooks содержит необязательные хуки для наблюдаемости.
type JobHooks struct {
	OnJobStart  func(jobName string)
	OnJobFinish func(jobName string, duration time.Duration, err error)
}

// Config содержит конфигурацию планировщика.
type Config struct {
	Logger   *slog.Logger
	JobHooks JobHooks
}

// job оборачивает задачу с её опциями.
type job struct {
	fn      JobFunc
	options JobOptions
	running sync.Mutex // для контроля перекрытий
}

// cronLogger адаптер для интеграции cron logger с slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.LogAttrs(context.Background(), slog.LevelDebug, msg, kvAttrs(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	attrs := append([]slog.Attr{slog.Any("error", err)}, kvAttrs(keysAndValues)...)
	l.logger.LogAttrs(context.Background(), slog.LevelError, msg, attrs...)
}

func kvAttrs(kv []interface{}) []slog.Attr {
	attrs := make([]slog.Attr, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		attrs = append(attrs, slog.Any(key, kv[i+1]))
	}
	return attrs
}

// Scheduler управляет периодическими задачами.
type Scheduler struct {
	cron      *cron.Cron
	logger    *slog.Logger
	hooks     JobHooks
	ctx       context.Context
	cancel    context.CancelFunc
	mu        sync.Mutex
	jobs      map[string]cron.EntryID
	stopOnce  sync.Once
	startOnce sync.Once
}

// New создает новый экземпляр планировщика с background контекстом.
func New(cfg Config) *Scheduler {
	return NewWithContext(context.Background(), cfg)
}

// NewWithContext создает планировщик, который останавливается вместе с parentCtx.
func NewWithContext(parentCtx context.Context, cfg Config) *Scheduler {
	ctx, cancel := context.WithCancel(parentCtx)

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "scheduler")

	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cronLogger{logger: logger}),
		),
		logger: logger,
		hooks:  cfg.JobHooks,
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]cron.EntryID),
	}
}

// Add регистрирует задачу по cron-расписанию.
// Примеры расписаний:
//   - "@every 30s" - каждые 30 секунд
//   - "0 */5 * * * *" - каждые 5 минут
//   - "@hourly" - каждый час
func (s *Scheduler) Add(schedule string, fn JobFunc, opts JobOptions) error {
	if opts.Name == "" {
		return errors.New("scheduler: job name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[opts.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, opts.Name)
	}

	j := &job{fn: fn, options: opts}
	id, err := s.cron.AddFunc(schedule, func() { s.run(j) })
	if err != nil {
		return fmt.Errorf("scheduler: job %s: bad schedule %q: %w", opts.Name, schedule, err)
	}
	s.jobs[opts.Name] = id

	s.logger.Info("job registered", "name", opts.Name, "schedule", schedule, "overlap_policy", opts.OverlapPolicy)
	return nil
}

// Remove снимает задачу с расписания.
func (s *Scheduler) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, exists := s.jobs[name]
	if !exists {
		return false
	}
	s.cron.Remove(id)
	delete(s.jobs, name)
	s.logger.Info("job removed", "name", name)
	return true
}

// Jobs возвращает отсортированные имена зарегистрированных задач.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Start запускает планировщик.
func (s *Scheduler) Start() {
	s.startOnce.Do(func() {
		s.logger.Info("starting scheduler")
		s.cron.Start()

		go func() {
			<-s.ctx.Done()
			s.stopOnce.Do(s.stop)
		}()
	})
}

// Stop останавливает планировщик и ждет завершения всех задач.
func (s *Scheduler) Stop() {
	if !s.IsRunning() {
		return
	}
	s.cancel()
	s.stopOnce.Do(s.stop)
}

// StopContext останавливает планировщик с учетом дедлайна ctx.
// Остановка доводится до конца даже при истекшем дедлайне, но тогда
// возвращается ctx.Err().
func (s *Scheduler) StopContext(ctx context.Context) error {
	if !s.IsRunning() {
		return nil
	}
	s.cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.stopOnce.Do(s.stop)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.logger.Warn("scheduler stop deadline exceeded, waiting for running jobs")
		<-done
		return ctx.Err()
	}
}

func (s *Scheduler) stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// IsRunning возвращает true, пока контекст планировщика не отменен.
func (s *Scheduler) IsRunning() bool {
	select {
	case <-s.ctx.Done():
		return false
	default:
		return true
	}
}

// run выполняет задачу с учетом её опций.
func (s *Scheduler) run(j *job) {
	name := j.options.Name

	switch j.options.OverlapPolicy {
	case SkipIfRunning:
		if !j.running.TryLock() {
			s.logger.Debug("skipping job execution, already running", "name", name)
			return
		}
		defer j.running.Unlock()
	case DelayIfRunning:
		j.running.Lock()
		defer j.running.Unlock()
	}

	if s.hooks.OnJobStart != nil {
		s.hooks.OnJobStart(name)
	}

	ctx := s.ctx
	if j.options.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, j.options.Timeout)
		defer cancel()
	}

	start := time.Now()
	err := s.call(ctx, j)
	duration := time.Since(start)

	if s.hooks.OnJobFinish != nil {
		s.hooks.OnJobFinish(name, duration, err)
	}
	if err != nil {
		s.logger.Error("job failed", "name", name, "error", err, "duration", duration)
		return
	}
	s.logger.Debug("job completed", "name", name, "duration", duration)
}

// call перехватывает панику задачи и превращает её в ошибку.
func (s *Scheduler) call(ctx context.Context, j *job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return j.fn(ctx)
}
