package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"support-mail-agent/internal/domain"
)

// scriptedNLU returns a prepared turn per utterance and records every call.
type scriptedNLU struct {
	turns    map[string]domain.Turn
	err      error
	calls    []string
	sessions []string
}

func (m *scriptedNLU) DetectIntent(_ context.Context, sessionID, utterance string) (domain.Turn, error) {
	if m.err != nil {
		return domain.Turn{}, m.err
	}
	m.calls = append(m.calls, utterance)
	m.sessions = append(m.sessions, sessionID)
	t := m.turns[utterance]
	t.Session = sessionID
	return t, nil
}

func matched(page, response string) domain.Turn {
	return domain.Turn{Matched: true, CurrentPage: page, Response: response}
}

func TestDispatchNewSessions_MintsOneSessionPerSentence(t *testing.T) {
	nlu := &scriptedNLU{turns: map[string]domain.Turn{
		"I need a refund.": matched("Collect Details", "sure"),
		"Close my ticket.": matched("Collect Details", "which one?"),
	}}
	s := &ProcessService{nlu: nlu, maxInputLen: 256}

	res, err := s.dispatchNewSessions(context.Background(), []string{"I need a refund.", "Close my ticket."})
	require.NoError(t, err)
	require.Len(t, res.turns, 2)
	require.False(t, res.activePath)
	require.NotEqual(t, nlu.sessions[0], nlu.sessions[1])
	require.Equal(t, nlu.sessions[0], res.turns[0].Session)
	require.Equal(t, nlu.sessions[1], res.turns[1].Session)
}

func TestDispatchNewSessions_DiscardsNoMatch(t *testing.T) {
	nlu := &scriptedNLU{turns: map[string]domain.Turn{
		"I need a refund.": matched("Collect Details", "sure"),
		"thanks":           {Matched: false},
		"Close my ticket.": matched("Collect Details", "which one?"),
	}}
	s := &ProcessService{nlu: nlu, maxInputLen: 256}

	res, err := s.dispatchNewSessions(context.Background(), []string{"I need a refund.", "thanks", "Close my ticket."})
	require.NoError(t, err)
	require.Len(t, res.turns, 2)
	require.Equal(t, "sure", res.turns[0].Response)
	require.Equal(t, "which one?", res.turns[1].Response)
	// All three sentences still reached the backend.
	require.Len(t, nlu.calls, 3)
}

func TestDispatchNewSessions_BackendError(t *testing.T) {
	s := &ProcessService{nlu: &scriptedNLU{err: errors.New("unavailable")}, maxInputLen: 256}
	_, err := s.dispatchNewSessions(context.Background(), []string{"hello"})
	require.Error(t, err)
}

func TestDispatchActiveSession_ReusesSessionID(t *testing.T) {
	nlu := &scriptedNLU{turns: map[string]domain.Turn{
		"order 1234": matched("Collect Details", "got it"),
	}}
	s := &ProcessService{nlu: nlu, maxInputLen: 256}

	res, err := s.dispatchActiveSession(context.Background(), "sess-live", "order 1234")
	require.NoError(t, err)
	require.True(t, res.activePath)
	require.False(t, res.guarded)
	require.Equal(t, []string{"sess-live"}, nlu.sessions)
	require.Equal(t, "sess-live", res.turns[0].Session)
}

func TestDispatchActiveSession_LengthGuardBoundary(t *testing.T) {
	nlu := &scriptedNLU{turns: map[string]domain.Turn{}}
	s := &ProcessService{nlu: nlu, maxInputLen: 256}

	res, err := s.dispatchActiveSession(context.Background(), "sess-live", strings.Repeat("a", 256))
	require.NoError(t, err)
	require.False(t, res.guarded)
	require.Len(t, nlu.calls, 1)

	res, err = s.dispatchActiveSession(context.Background(), "sess-live", strings.Repeat("a", 257))
	require.NoError(t, err)
	require.True(t, res.guarded)
	require.Empty(t, res.turns)
	// The over-long input never reached the backend.
	require.Len(t, nlu.calls, 1)
}
