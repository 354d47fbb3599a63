package usecase

import (
	"context"

	"github.com/google/uuid"

	"support-mail-agent/internal/domain"
)

// endSessionPage is the dialogue-state label that marks a session as
// complete.
const endSessionPage = "End Session"

// dispatchResult carries the raw turns from one invocation's NLU exchanges to
// the queue advancement policy. The dispatcher itself never mutates queue
// state.
type dispatchResult struct {
	activePath bool
	guarded    bool
	turns      []domain.Turn
}

// dispatch selects the code path for this invocation from the loaded state:
// continue the thread's active session, or mint new sessions from the
// message's sentences.
func (s *ProcessService) dispatch(ctx context.Context, state domain.QueueState, info domain.MessageInfo) (dispatchResult, error) {
	if state.ActiveSession == "" {
		return s.dispatchNewSessions(ctx, info.Sentences)
	}
	return s.dispatchActiveSession(ctx, state.ActiveSession, info.CleanBody)
}

// dispatchNewSessions runs one turn per sentence, each against a freshly
// minted session. Turns the backend reports as NO_MATCH are discarded; the
// rest are kept in sentence order.
func (s *ProcessService) dispatchNewSessions(ctx context.Context, sentences []string) (dispatchResult, error) {
	var res dispatchResult
	for _, sentence := range sentences {
		turn, err := s.nlu.DetectIntent(ctx, newSessionID(), sentence)
		if err != nil {
			return dispatchResult{}, err
		}
		if !turn.Matched {
			continue
		}
		res.turns = append(res.turns, turn)
	}
	return res, nil
}

// dispatchActiveSession runs exactly one turn against the existing session
// using the full message body. Input above the length limit short-circuits
// before reaching the backend; the guard exists to bound NLU call cost.
func (s *ProcessService) dispatchActiveSession(ctx context.Context, session, body string) (dispatchResult, error) {
	res := dispatchResult{activePath: true}
	if len(body) > s.maxInputLen {
		res.guarded = true
		return res, nil
	}
	turn, err := s.nlu.DetectIntent(ctx, session, body)
	if err != nil {
		return dispatchResult{}, err
	}
	res.turns = []domain.Turn{turn}
	return res, nil
}

var newSessionID = func() string {
	return uuid.NewString()
}
