package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/samber/mo"
)

// DefaultGracefulStopTimeout はgraceful stopの待機時間のデフォルト
const DefaultGracefulStopTimeout = 60 * time.Second

// SyncFunc は同期処理の関数型
// 構造化された失敗はresultのSuccess=falseで、例外的な失敗はerrorで表現する
type SyncFunc func(ctx context.Context) (*SyncJobResult, error)

// OnJobComplete はジョブ完了時のコールバック型
type OnJobComplete func(result *SyncJobResult)

// SchedulerConfig はスケジューラの設定
type SchedulerConfig struct {
	// CronExpression は5フィールドのcron式（例: "0 2 * * *" = 毎日午前2時）
	CronExpression string
	// Timezone はcron評価に使うタイムゾーン（デフォルト: Asia/Tokyo）
	Timezone string
	// SyncTimeout はgraceful stop時にジョブ完了を待つ上限
	SyncTimeout time.Duration
}

// Scheduler はcron式に基づいて同期処理を定期実行する
//
// 同時に実行されるジョブは最大1つ。実行中にトリガーが発火した場合は
// キューイングせず黙ってスキップする
type Scheduler struct {
	mu sync.Mutex

	config SchedulerConfig
	syncFn SyncFunc
	logger *slog.Logger
	loc    *time.Location

	cron    *cron.Cron
	state   State
	running bool
	jobDone chan struct{}

	lastRunAt     mo.Option[time.Time]
	lastRunResult mo.Option[RunResult]
	runCount      int
	errorCount    int

	callbacks []OnJobComplete
}

// SchedulerOption は Scheduler のオプション設定
type SchedulerOption func(*Scheduler)

// WithSchedulerLogger はロガーを上書きする
func WithSchedulerLogger(logger *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// NewScheduler は新しい Scheduler を作成する
// cron式が不正な場合は即座にエラーを返す（不正なスケジュールで起動させない）
func NewScheduler(config SchedulerConfig, syncFn SyncFunc, opts ...SchedulerOption) (*Scheduler, error) {
	if _, err := ValidateCronExpression(config.CronExpression, config.Timezone); err != nil {
		return nil, fmt.Errorf("scheduler construction failed: %w", err)
	}

	timezone := config.Timezone
	if timezone == "" {
		timezone = DefaultTimezone
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("scheduler construction failed: %w", err)
	}

	s := &Scheduler{
		config: config,
		syncFn: syncFn,
		logger: slog.Default(),
		loc:    loc,
		state:  StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Status は現在のステータスを返す
// NextRunAt はキャッシュせず毎回cron式から計算し直す
func (s *Scheduler) Status() SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := SchedulerStatus{
		State:         s.state,
		LastRunAt:     s.lastRunAt,
		LastRunResult: s.lastRunResult,
		NextRunAt:     mo.None[time.Time](),
		RunCount:      s.runCount,
		ErrorCount:    s.errorCount,
	}

	if s.state != StateStopped {
		if next, err := ValidateCronExpression(s.config.CronExpression, s.config.Timezone); err == nil {
			status.NextRunAt = mo.Some(next)
		}
	}

	return status
}

// Start はスケジュールを開始する
// すでに実行中、または停止処理中の場合は何もせず false を返す
// （stopping中に開始を許すと、停止完了時にcron登録だけが残ってしまう）
func (s *Scheduler) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateRunning || s.state == StateStopping {
		return false
	}

	c := cron.New(cron.WithLocation(s.loc), cron.WithParser(cronParser))
	_, err := c.AddFunc(s.config.CronExpression, func() {
		if result := s.RunNow(context.Background()); result == nil {
			s.logger.Info("scheduled sync trigger skipped")
		}
	})
	if err != nil {
		// cron式はコンストラクタで検証済みなので到達しない
		s.logger.Error("failed to register cron job", slog.String("error", err.Error()))
		return false
	}
	c.Start()

	s.cron = c
	s.state = StateRunning
	return true
}

// Stop はスケジュールを即座に停止する
// 実行中のジョブの完了は待たない（ジョブの追跡を放棄する）
// すでにidle/stoppedの場合は何もせず false を返す
func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateIdle || s.state == StateStopped {
		return false
	}

	if s.cron != nil {
		s.cron.Stop()
		s.cron = nil
	}

	s.state = StateStopped
	return true
}

// GracefulStop は新規トリガーを止めたうえで、実行中のジョブの完了を
// タイムアウトまで待ってから停止する
//
// タイムアウト時はジョブを放棄して stopped に遷移する。ジョブ自体は
// キャンセルされないため、stopped 報告後もバックグラウンドで完走しうる
// （トランザクション途中での強制中断による部分書き込みを避けるための選択）
func (s *Scheduler) GracefulStop(ctx context.Context, timeout time.Duration) {
	s.mu.Lock()

	if s.state == StateStopped {
		s.mu.Unlock()
		return
	}

	// 新規スケジュールを停止
	if s.cron != nil {
		s.cron.Stop()
		s.cron = nil
	}

	// 実行中のジョブがなければ即停止
	if !s.running || s.jobDone == nil {
		s.state = StateStopped
		s.mu.Unlock()
		return
	}

	s.state = StateStopping
	done := s.jobDone

	if timeout <= 0 {
		timeout = s.config.SyncTimeout
	}
	if timeout <= 0 {
		timeout = DefaultGracefulStopTimeout
	}
	s.mu.Unlock()

	select {
	case <-done:
	case <-time.After(timeout):
		s.logger.Warn("graceful stop timed out, abandoning in-flight job",
			slog.Duration("timeout", timeout))
	case <-ctx.Done():
		s.logger.Warn("graceful stop cancelled, abandoning in-flight job")
	}

	s.mu.Lock()
	s.state = StateStopped
	s.mu.Unlock()
}

// IsJobRunning はジョブが実行中かどうかを返す
func (s *Scheduler) IsJobRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// RunNow は同期ジョブを即時実行する
// running/stopping以外の状態、またはジョブ実行中の場合は nil を返す
// （キューイングもエラーにもしない）
func (s *Scheduler) RunNow(ctx context.Context) *SyncJobResult {
	s.mu.Lock()

	if s.state != StateRunning && s.state != StateStopping {
		s.mu.Unlock()
		return nil
	}

	// 重複実行防止: フラグのチェックと設定は同一クリティカルセクション内
	if s.running {
		s.mu.Unlock()
		s.logger.Info("sync job already in flight, skipping")
		return nil
	}

	s.running = true
	done := make(chan struct{})
	s.jobDone = done
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.jobDone = nil
		s.mu.Unlock()
		close(done)
	}()

	return s.executeJob(ctx)
}

// OnJobComplete はジョブ完了時のコールバックを登録する
func (s *Scheduler) OnJobComplete(callback OnJobComplete) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks = append(s.callbacks, callback)
}

// executeJob は同期関数を1回実行し、統計を更新してコールバックを呼ぶ
// 同期関数のエラーやpanicは失敗形のSyncJobResultに変換する
// （ジョブの失敗でホストプロセスを落とさない）
func (s *Scheduler) executeJob(ctx context.Context) *SyncJobResult {
	startedAt := time.Now()

	result := s.runSyncFunc(ctx, startedAt)

	s.mu.Lock()
	s.lastRunAt = mo.Some(startedAt)
	s.runCount++
	if result.Success {
		s.lastRunResult = mo.Some(RunResultSuccess)
	} else {
		s.lastRunResult = mo.Some(RunResultFailure)
		s.errorCount++
	}
	callbacks := make([]OnJobComplete, len(s.callbacks))
	copy(callbacks, s.callbacks)
	s.mu.Unlock()

	s.notifyJobComplete(callbacks, result)

	return result
}

// runSyncFunc は同期関数を実行し、エラー・panicを失敗結果に正規化する
func (s *Scheduler) runSyncFunc(ctx context.Context, startedAt time.Time) (result *SyncJobResult) {
	failure := func(message string) *SyncJobResult {
		completedAt := time.Now()
		return &SyncJobResult{
			ID:          uuid.New(),
			StartedAt:   startedAt,
			CompletedAt: completedAt,
			Success:     false,
			SyncedCount: 0,
			FailedCount: 0,
			Errors:      []string{message},
			Duration:    completedAt.Sub(startedAt),
		}
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("sync job panicked", slog.Any("panic", r))
			result = failure(fmt.Sprintf("sync job panicked: %v", r))
		}
	}()

	jobResult, err := s.syncFn(ctx)
	if err != nil {
		return failure(err.Error())
	}
	return jobResult
}

// notifyJobComplete は登録された全コールバックを呼び出す
// 個々のコールバックのpanicは握りつぶし、他のコールバックや
// スケジューラ本体に影響させない
func (s *Scheduler) notifyJobComplete(callbacks []OnJobComplete, result *SyncJobResult) {
	for _, callback := range callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("job completion callback panicked", slog.Any("panic", r))
				}
			}()
			callback(result)
		}()
	}
}
