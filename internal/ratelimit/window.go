package ratelimit

import (
	"fmt"
	"math"
	"time"
)

// Window 는 카운팅 윈도우 종류다.
type Window string

const (
	WindowMinute Window = "minute"
	WindowHour   Window = "hour"
	WindowDay    Window = "day"
)

// keyGrace 는 버킷 종료 후에도 키를 잠시 남겨 경계 시점 경합을 피한다.
const keyGrace = 5 * time.Second

// Limits 는 윈도우별 허용 요청 수다. 0 이하이면 해당 윈도우는 검사하지 않는다.
type Limits struct {
	PerMinute int
	PerHour   int
	PerDay    int
}

// Bucket 은 한 윈도우의 현재 버킷이다.
type Bucket struct {
	Window  Window
	Key     string
	Limit   int
	Start   time.Time
	ResetAt time.Time
	TTL     time.Duration
}

// buckets 는 minute -> hour -> day 순서로 활성 윈도우 버킷을 만든다.
// 버킷은 loc 기준 경계(분, 시, 자정)에 정렬된다.
func buckets(identifier string, limits Limits, now time.Time, loc *time.Location) []Bucket {
	if loc == nil {
		loc = time.Local
	}
	local := now.In(loc)
	y, mo, d := local.Date()

	defs := []struct {
		window Window
		limit  int
		start  time.Time
		end    time.Time
	}{
		{
			window: WindowMinute,
			limit:  limits.PerMinute,
			start:  time.Date(y, mo, d, local.Hour(), local.Minute(), 0, 0, loc),
		},
		{
			window: WindowHour,
			limit:  limits.PerHour,
			start:  time.Date(y, mo, d, local.Hour(), 0, 0, 0, loc),
		},
		{
			window: WindowDay,
			limit:  limits.PerDay,
			start:  time.Date(y, mo, d, 0, 0, 0, 0, loc),
			end:    time.Date(y, mo, d+1, 0, 0, 0, 0, loc),
		},
	}
	defs[0].end = defs[0].start.Add(time.Minute)
	defs[1].end = defs[1].start.Add(time.Hour)

	result := make([]Bucket, 0, len(defs))
	for _, def := range defs {
		if def.limit <= 0 {
			continue
		}
		result = append(result, Bucket{
			Window:  def.window,
			Key:     fmt.Sprintf("assistant:rl:%s:%s:%d", def.window, identifier, def.start.Unix()),
			Limit:   def.limit,
			Start:   def.start,
			ResetAt: def.end,
			TTL:     def.end.Sub(now) + keyGrace,
		})
	}
	return result
}

func ttlSeconds(d time.Duration) int64 {
	return max(1, int64(math.Ceil(d.Seconds())))
}
