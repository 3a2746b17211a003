package syncer

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultTimezone はタイムゾーン未指定時のデフォルト
const DefaultTimezone = "Asia/Tokyo"

// cronParser は標準的な5フィールドcron式（分 時 日 月 曜日）のパーサー
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// ValidateCronExpression はcron式を検証し、指定タイムゾーンでの次回実行日時を返す
//
// 「次回実行」は壁時計に対して動く値なので、呼び出しのたびに計算し直す前提。
// 結果をキャッシュしてはいけない
func ValidateCronExpression(expression, timezone string) (time.Time, error) {
	if strings.TrimSpace(expression) == "" {
		return time.Time{}, fmt.Errorf("cron expression is empty")
	}

	// フィールド数のチェック（5フィールドを要求）
	fields := strings.Fields(expression)
	if len(fields) != 5 {
		return time.Time{}, fmt.Errorf("cron expression must have 5 fields (minute hour dom month dow), got %d", len(fields))
	}

	if timezone == "" {
		timezone = DefaultTimezone
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timezone %q: %w", timezone, err)
	}

	schedule, err := cronParser.Parse(expression)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression %q: %w", expression, err)
	}

	return schedule.Next(time.Now().In(loc)), nil
}
