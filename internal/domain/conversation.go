package domain

// PendingSession is a matched-but-not-yet-active NLU session queued for a
// thread, together with the response fragment to emit once it is promoted.
type PendingSession struct {
	Session  string
	Response string
}

// QueueState is the durable per-thread record of the active NLU session and
// the stack of pending sessions. Version is the optimistic-concurrency token
// read at load time; a save conditioned on it fails if another invocation
// wrote the thread in between.
type QueueState struct {
	ActiveSession string
	Pending       []PendingSession
	Version       int64
}

// Push appends a pending session to the top of the stack.
func (s *QueueState) Push(p PendingSession) {
	s.Pending = append(s.Pending, p)
}

// Pop removes and returns the most recently pushed pending session. The
// second return is false when the stack is empty. Sessions are deliberately
// resolved most-recently-matched first.
func (s *QueueState) Pop() (PendingSession, bool) {
	if len(s.Pending) == 0 {
		return PendingSession{}, false
	}
	p := s.Pending[len(s.Pending)-1]
	s.Pending = s.Pending[:len(s.Pending)-1]
	return p, true
}

// Turn is the result of a single exchange with the NLU backend.
type Turn struct {
	Session     string
	Intent      string
	Response    string
	CurrentPage string
	Matched     bool
}

// ResponseUnit is one piece of composed output text attached to the session
// that produced it.
type ResponseUnit struct {
	Session     string
	Response    string
	CurrentPage string
}

// Topic is a classified message topic with its knowledge-base link.
type Topic struct {
	Name   string
	DocURL string
}

// TopicScore is a raw classifier prediction before the confidence cut.
type TopicScore struct {
	Name  string
	Score float64
}
