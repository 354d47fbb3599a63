package usecase

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"support-mail-agent/internal/domain"
)

func pending(ids ...string) []domain.PendingSession {
	out := make([]domain.PendingSession, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.PendingSession{Session: id, Response: "resp-" + id})
	}
	return out
}

func requireActiveNotPending(t *testing.T, state domain.QueueState) {
	t.Helper()
	for _, p := range state.Pending {
		require.NotEqual(t, state.ActiveSession, p.Session)
	}
}

func TestAdvanceNewSessions_EndSessionEmittedImmediately(t *testing.T) {
	turns := []domain.Turn{
		{Session: "s1", Response: "refund done", CurrentPage: endSessionPage, Matched: true},
	}
	state, units := advanceNewSessions(domain.QueueState{}, turns)
	require.Empty(t, state.ActiveSession)
	require.Empty(t, state.Pending)
	require.Len(t, units, 1)
	require.Equal(t, "s1", units[0].Session)
	require.Equal(t, "refund done", units[0].Response)
}

func TestAdvanceNewSessions_PromotesMostRecentCandidate(t *testing.T) {
	turns := []domain.Turn{
		{Session: "s1", Response: "open ticket?", CurrentPage: "Collect Details", Matched: true},
		{Session: "s2", Response: "close ticket?", CurrentPage: "Collect Details", Matched: true},
	}
	state, units := advanceNewSessions(domain.QueueState{}, turns)
	require.Equal(t, "s2", state.ActiveSession)
	require.Equal(t, pending("s1")[:1], state.Pending)
	require.Len(t, units, 1)
	require.Equal(t, "s2", units[0].Session)
	require.Equal(t, "close ticket?", units[0].Response)
	requireActiveNotPending(t, state)
}

func TestAdvanceNewSessions_MixedCompletionsAndCandidates(t *testing.T) {
	turns := []domain.Turn{
		{Session: "s1", Response: "done", CurrentPage: endSessionPage, Matched: true},
		{Session: "s2", Response: "more info?", CurrentPage: "Collect Details", Matched: true},
	}
	state, units := advanceNewSessions(domain.QueueState{}, turns)
	require.Equal(t, "s2", state.ActiveSession)
	require.Empty(t, state.Pending)
	require.Len(t, units, 2)
	require.Equal(t, "s1", units[0].Session)
	require.Equal(t, "s2", units[1].Session)
}

func TestAdvanceNewSessions_NoCandidates(t *testing.T) {
	state, units := advanceNewSessions(domain.QueueState{}, nil)
	require.Empty(t, state.ActiveSession)
	require.Empty(t, state.Pending)
	require.Empty(t, units)
}

func TestAdvanceActive_NonEndKeepsSession(t *testing.T) {
	s := &ProcessService{maxInputLen: 256}
	state := domain.QueueState{ActiveSession: "s-active", Pending: pending("a", "b")}
	res := dispatchResult{activePath: true, turns: []domain.Turn{
		{Session: "s-active", Response: "what is your order number?", CurrentPage: "Collect Details"},
	}}
	next, units := s.advanceQueue(state, res)
	require.Equal(t, "s-active", next.ActiveSession)
	require.Equal(t, pending("a", "b"), next.Pending)
	require.Len(t, units, 1)
	require.Equal(t, "what is your order number?", units[0].Response)
}

func TestAdvanceActive_EndPromotesLIFO(t *testing.T) {
	s := &ProcessService{maxInputLen: 256}
	state := domain.QueueState{ActiveSession: "s-active", Pending: pending("a", "b", "c")}
	res := dispatchResult{activePath: true, turns: []domain.Turn{
		{Session: "s-active", Response: "all set.", CurrentPage: endSessionPage},
	}}
	next, units := s.advanceQueue(state, res)
	require.Equal(t, "c", next.ActiveSession)
	require.Equal(t, pending("a", "b"), next.Pending)
	require.Len(t, units, 1)
	require.Equal(t, "all set.<br><br>resp-c", units[0].Response)
	requireActiveNotPending(t, next)
}

func TestAdvanceActive_EndWithEmptyQueue(t *testing.T) {
	s := &ProcessService{maxInputLen: 256}
	state := domain.QueueState{ActiveSession: "s-active"}
	res := dispatchResult{activePath: true, turns: []domain.Turn{
		{Session: "s-active", Response: "all set.", CurrentPage: endSessionPage},
	}}
	next, units := s.advanceQueue(state, res)
	require.Empty(t, next.ActiveSession)
	require.Empty(t, next.Pending)
	require.Len(t, units, 1)
	require.Equal(t, "all set.", units[0].Response)
}

func TestAdvanceActive_LengthGuardLeavesStateUntouched(t *testing.T) {
	s := &ProcessService{maxInputLen: 256}
	state := domain.QueueState{ActiveSession: "s-active", Pending: pending("a")}
	next, units := s.advanceQueue(state, dispatchResult{activePath: true, guarded: true})
	require.Equal(t, state, next)
	require.Len(t, units, 1)
	require.Equal(t, "s-active", units[0].Session)
	require.True(t, strings.Contains(units[0].Response, "256"))
	require.True(t, strings.Contains(units[0].Response, "shorter"))
}
