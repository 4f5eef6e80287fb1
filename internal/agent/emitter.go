package agent

import (
	"time"

	"github.com/grandcafe/concierge/pkg/models"
)

// emitter serializes a turn's events onto one channel with a monotonic
// sequence. After a terminal event (done or error) every further emit is
// dropped, so late goroutines can never corrupt a closed stream.
type emitter struct {
	ch             chan models.StreamEvent
	conversationID string
	now            func() time.Time

	seq      uint64
	terminal bool
}

func newEmitter(conversationID string, buffer int, now func() time.Time) *emitter {
	if now == nil {
		now = time.Now
	}
	return &emitter{
		ch:             make(chan models.StreamEvent, buffer),
		conversationID: conversationID,
		now:            now,
	}
}

// emit stamps and sends one event. Only the turn goroutine calls emit, so
// no locking is needed.
func (e *emitter) emit(ev models.StreamEvent) {
	if e.terminal {
		return
	}
	if ev.Type == models.EventDone || ev.Type == models.EventError {
		e.terminal = true
	}
	e.seq++
	ev.Sequence = e.seq
	ev.Time = e.now()
	ev.ConversationID = e.conversationID
	e.ch <- ev
}

func (e *emitter) token(text string) {
	e.emit(models.StreamEvent{
		Type:  models.EventToken,
		Token: &models.TokenPayload{Text: text},
	})
}

func (e *emitter) artifact(a *models.Artifact) {
	e.emit(models.StreamEvent{
		Type:     models.EventArtifact,
		Artifact: a,
	})
}

func (e *emitter) errorEvent(msg, code string, err error) {
	e.emit(models.StreamEvent{
		Type:  models.EventError,
		Error: &models.ErrorPayload{Message: msg, Code: code, Err: err},
	})
}

func (e *emitter) close() {
	close(e.ch)
}
