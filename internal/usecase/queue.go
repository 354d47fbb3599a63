package usecase

import (
	"fmt"

	"support-mail-agent/internal/domain"
)

// advanceQueue folds dispatcher output into the next queue state and the
// response units to emit. This is the only place queue state changes.
func (s *ProcessService) advanceQueue(state domain.QueueState, res dispatchResult) (domain.QueueState, []domain.ResponseUnit) {
	if res.activePath {
		return s.advanceActive(state, res)
	}
	return advanceNewSessions(state, res.turns)
}

// advanceNewSessions queues the matched candidates in sentence order, then
// promotes the most recently pushed one to active. Candidates that already
// reached the end-of-session page are emitted immediately and never queued.
func advanceNewSessions(state domain.QueueState, turns []domain.Turn) (domain.QueueState, []domain.ResponseUnit) {
	var units []domain.ResponseUnit
	for _, t := range turns {
		if t.CurrentPage == endSessionPage {
			units = append(units, domain.ResponseUnit{Session: t.Session, Response: t.Response, CurrentPage: t.CurrentPage})
			continue
		}
		state.Push(domain.PendingSession{Session: t.Session, Response: t.Response})
	}
	if p, ok := state.Pop(); ok {
		state.ActiveSession = p.Session
		units = append(units, domain.ResponseUnit{Session: p.Session, Response: p.Response})
	}
	return state, units
}

// advanceActive keeps the active session open unless its turn reached the
// end-of-session page, in which case the next pending session (most recently
// matched first) is promoted and its prepared response is appended to the
// completed turn's.
func (s *ProcessService) advanceActive(state domain.QueueState, res dispatchResult) (domain.QueueState, []domain.ResponseUnit) {
	if res.guarded {
		unit := domain.ResponseUnit{
			Session:  state.ActiveSession,
			Response: fmt.Sprintf("Your reply was longer than %d characters. Please send a shorter reply to continue.", s.maxInputLen),
		}
		return state, []domain.ResponseUnit{unit}
	}

	t := res.turns[0]
	if t.CurrentPage != endSessionPage {
		unit := domain.ResponseUnit{Session: state.ActiveSession, Response: t.Response, CurrentPage: t.CurrentPage}
		return state, []domain.ResponseUnit{unit}
	}

	response := t.Response
	if p, ok := state.Pop(); ok {
		state.ActiveSession = p.Session
		response = response + "<br><br>" + p.Response
	} else {
		state.ActiveSession = ""
	}
	unit := domain.ResponseUnit{Session: state.ActiveSession, Response: response, CurrentPage: t.CurrentPage}
	return state, []domain.ResponseUnit{unit}
}
