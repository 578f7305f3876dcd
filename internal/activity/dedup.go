package activity

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/resumetrack/internal/model"
)

// DefaultDedupWindow は同一操作を重複とみなす期間。
const DefaultDedupWindow = 2 * time.Second

const dedupKeyPrefix = "resumetrack:activity:dedup"

// Deduplicator は短時間に繰り返された同一アクティビティを検出する。
type Deduplicator interface {
	// Claim はキーの記録権を取得する。windowの間に同じキーで既に取得済みならfalseを返す。
	Claim(ctx context.Context, key string) (bool, error)
	// Release はClaimで取得したキーを解放する。保存に失敗した操作を再送できるようにする。
	Release(ctx context.Context, key string) error
}

// RedisDeduplicator はRedisのSET NX PXでウィンドウ内の重複を検出する。
// 複数のAPIサーバー間で重複判定を共有できる。
type RedisDeduplicator struct {
	client redis.Cmdable
	window time.Duration
}

// NewRedisDeduplicator はRedisDeduplicatorを生成する。windowが0以下の場合はDefaultDedupWindowを使う。
func NewRedisDeduplicator(client redis.Cmdable, window time.Duration) *RedisDeduplicator {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	return &RedisDeduplicator{client: client, window: window}
}

// Claim はキーが未登録なら有効期限付きで登録しtrueを返す。
func (d *RedisDeduplicator) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := d.client.SetNX(ctx, dedupKeyPrefix+":"+key, 1, d.window).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim dedup key: %w", err)
	}
	return ok, nil
}

// Release はキーを削除する。存在しない場合も成功とする。
func (d *RedisDeduplicator) Release(ctx context.Context, key string) error {
	if err := d.client.Del(ctx, dedupKeyPrefix+":"+key).Err(); err != nil {
		return fmt.Errorf("failed to release dedup key: %w", err)
	}
	return nil
}

// dedupKey は重複判定に使う (userId, activityType, pageUrl) の組を表すキーを返す。
func dedupKey(userID int64, t model.ActivityType, pageURL string) string {
	return fmt.Sprintf("%d:%s:%s", userID, t, pageURL)
}

// eventDedupKey はイベントの重複判定キーを返す。
// pageUrlが空の場合は詳細項目のハッシュを付け、内容の異なる操作を別物として扱う。
func eventDedupKey(userID int64, ev Event) string {
	key := dedupKey(userID, ev.ActivityType, ev.PageURL)
	if ev.PageURL != "" {
		return key
	}
	return key + ":" + strconv.FormatUint(detailFingerprint(ev), 16)
}

func detailFingerprint(ev Event) uint64 {
	h := xxhash.New()
	for _, s := range []string{
		ev.Description,
		ev.SearchQuery,
		ev.JobCategory,
		ev.SkillsSearched,
		ev.ExperienceLevel,
		ev.ResumeID,
		ev.ResumeFileName,
		ev.DownloadPath,
		ev.FeatureUsed,
		string(ev.Metadata),
		optionalInt(ev.ResultsCount),
		optionalInt(ev.TimeSpent),
		optionalInt(ev.ViewDuration),
	} {
		_, _ = h.WriteString(s)
		_, _ = h.Write([]byte{0})
	}
	return h.Sum64()
}

func optionalInt(v *int) string {
	if v == nil {
		return "-"
	}
	return strconv.Itoa(*v)
}
