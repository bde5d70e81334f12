package http

import (
	"context"
	"sync"

	"pockets/internal/ledger"
)

type noticeKey struct{}

type noticeSink struct {
	mu      sync.Mutex
	notices []ledger.Notice
}

func (s *noticeSink) last() (ledger.Notice, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.notices) == 0 {
		return ledger.Notice{}, false
	}
	return s.notices[len(s.notices)-1], true
}

func withNoticeSink(ctx context.Context) (context.Context, *noticeSink) {
	sink := &noticeSink{}
	return context.WithValue(ctx, noticeKey{}, sink), sink
}

// RequestNotifier routes ledger notices raised while serving a request into
// that request's response. Every notice is also forwarded to Next.
type RequestNotifier struct {
	Next ledger.Notifier
}

func (n RequestNotifier) Notify(ctx context.Context, notice ledger.Notice) {
	if sink, ok := ctx.Value(noticeKey{}).(*noticeSink); ok {
		sink.mu.Lock()
		sink.notices = append(sink.notices, notice)
		sink.mu.Unlock()
	}
	if n.Next != nil {
		n.Next.Notify(ctx, notice)
	}
}
