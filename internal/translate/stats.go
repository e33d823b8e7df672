package translate

import (
	"fmt"
	"strings"
	"time"
)

// Recorder accumulates a throughput estimate for one completion. The
// backend reports no token counts, so tokens are approximated by
// whitespace-splitting each output fragment.
type Recorder struct {
	tokens int
}

func (r *Recorder) Add(text string) {
	r.tokens += len(strings.Fields(text))
}

func (r *Recorder) Tokens() int {
	return r.tokens
}

// Annotation renders the human-readable stats trailer appended to output.
func (r *Recorder) Annotation(elapsed time.Duration) string {
	secs := elapsed.Seconds()
	rate := 0.0
	if secs > 0 {
		rate = float64(r.tokens) / secs
	}
	return fmt.Sprintf("\n\n[Stats: %d tokens in %.2fs = %.2f tokens/s]", r.tokens, secs, rate)
}
