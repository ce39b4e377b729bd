// ABOUTME: Transcript chaining for providers that keep no server-side context
// ABOUTME: Maps each issued response id to the full turn list that produced it

package completion

import (
	"fmt"
	"time"

	"github.com/2389/coven-chat/internal/replay"
)

// chainer emulates previous-response chaining on top of a stateless API.
type chainer struct {
	transcripts *replay.Cache[[]Turn]
}

func newChainer(ttl time.Duration, maxEntries int) *chainer {
	return &chainer{transcripts: replay.New[[]Turn](ttl, maxEntries)}
}

// extend returns the transcript stored for previousID followed by turns.
// An empty previousID starts a new transcript.
func (c *chainer) extend(previousID string, turns []Turn) ([]Turn, error) {
	var history []Turn
	if previousID != "" {
		var ok bool
		history, ok = c.transcripts.Get(previousID)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownResponse, previousID)
		}
	}
	out := make([]Turn, 0, len(history)+len(turns))
	out = append(out, history...)
	return append(out, turns...), nil
}

// record stores the transcript ending in reply under responseID.
func (c *chainer) record(responseID string, turns []Turn, reply string) {
	if responseID == "" {
		return
	}
	full := make([]Turn, 0, len(turns)+1)
	full = append(full, turns...)
	full = append(full, Turn{Role: RoleAssistant, Text: reply})
	c.transcripts.Put(responseID, full)
}

func (c *chainer) close() {
	c.transcripts.Close()
}
