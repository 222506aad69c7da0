package playback

import (
	"context"
	"math"
	"time"

	"github.com/samber/lo"
)

const (
	minCharInterval = 18 * time.Millisecond
	maxCharInterval = 120 * time.Millisecond
)

// CharInterval converts a speaking speed into the delay between revealed
// characters, assuming five characters per word.
func CharInterval(wpm float64) time.Duration {
	ms := 60000 / math.Max(wpm*5, 200)
	ms = lo.Clamp(ms, float64(minCharInterval/time.Millisecond), float64(maxCharInterval/time.Millisecond))
	return time.Duration(ms * float64(time.Millisecond))
}

// Reveal emits text one rune at a time, waiting interval before each rune.
// Empty text still takes one interval. frame receives the revealed prefix.
func Reveal(ctx context.Context, clock Clock, text string, interval time.Duration, frame func(string)) error {
	runes := []rune(text)
	if len(runes) == 0 {
		return clock.Sleep(ctx, interval)
	}
	for i := range runes {
		if err := clock.Sleep(ctx, interval); err != nil {
			return err
		}
		if frame != nil {
			frame(string(runes[:i+1]))
		}
	}
	return nil
}
