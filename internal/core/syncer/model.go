package syncer

import (
	"time"

	"github.com/google/uuid"
	"github.com/samber/mo"
)

// State はスケジューラの状態を表す
type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateStopped  State = "stopped"
)

// RunResult はジョブ実行結果の種別を表す
type RunResult string

const (
	RunResultSuccess RunResult = "success"
	RunResultFailure RunResult = "failure"
)

// SyncJobResult は1回の同期ジョブ実行の結果を表す
type SyncJobResult struct {
	ID          uuid.UUID     `json:"id"`
	StartedAt   time.Time     `json:"startedAt"`
	CompletedAt time.Time     `json:"completedAt"`
	Success     bool          `json:"success"`
	SyncedCount int           `json:"syncedCount"`
	FailedCount int           `json:"failedCount"`
	Errors      []string      `json:"errors"`
	Duration    time.Duration `json:"durationMs"`
}

// SchedulerStatus はスケジューラのステータス情報を表す
// スケジューラ自身のメソッド以外から変更されることはない
type SchedulerStatus struct {
	State         State                 `json:"state"`
	LastRunAt     mo.Option[time.Time]  `json:"lastRunAt"`
	LastRunResult mo.Option[RunResult]  `json:"lastRunResult"`
	NextRunAt     mo.Option[time.Time]  `json:"nextRunAt"`
	RunCount      int                   `json:"runCount"`
	ErrorCount    int                   `json:"errorCount"`
}

// Article は取得元から取り込む記事を表す
type Article struct {
	ID         string
	Title      string
	Body       string
	URL        string
	AuthorID   string
	AuthorName string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
