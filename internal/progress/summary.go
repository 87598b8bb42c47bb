package progress

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// Summary is a snapshot suitable for a post-run report line: how long a
// stage took and roughly how large its output was.
type Summary struct {
	Stage    string
	Elapsed  time.Duration
	Bytes    int64
	ItemDone int
	ItemOf   int
}

// String renders a human-friendly one-liner, e.g. "denoise: 3/10 in 42
// seconds , 1.2 MB written" (RelTime leaves a space after the duration).
func (s Summary) String() string {
	base := fmt.Sprintf("%s: %d/%d in %s", s.Stage, s.ItemDone, s.ItemOf, humanize.RelTime(time.Now().Add(-s.Elapsed), time.Now(), "", ""))
	if s.Bytes > 0 {
		base += fmt.Sprintf(", %s written", humanize.Bytes(uint64(s.Bytes)))
	}
	return base
}
