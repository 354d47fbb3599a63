package usecase

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"support-mail-agent/internal/domain"
)

func TestBuildReply_ThreadingHeaders(t *testing.T) {
	info := domain.MessageInfo{
		From:       "Alice Smith <alice@example.com>",
		To:         "Support Bot <bot@example.com>",
		Subject:    "Trouble with my order [#support]",
		RFCID:      "<orig@mail.example.com>",
		References: "<first@mail.example.com>",
		SenderName: "Alice",
	}
	raw := buildReply(info, nil, domain.QueueState{})
	lines := strings.Split(raw, "\n")

	require.Contains(t, lines, "From: Support Bot <bot@example.com>")
	require.Contains(t, lines, "To: Alice Smith <alice@example.com>")
	require.Contains(t, lines, "References: <first@mail.example.com> <orig@mail.example.com>")
	require.Contains(t, lines, "In-Reply-To: <orig@mail.example.com>")
	require.Contains(t, lines, "Subject: Re: Trouble with my order [#support]")
	require.Contains(t, lines, "Content-Type: text/html; charset=utf-8")
}

func TestBuildReply_NoPriorReferences(t *testing.T) {
	info := domain.MessageInfo{RFCID: "<orig@mail.example.com>"}
	raw := buildReply(info, nil, domain.QueueState{})
	require.Contains(t, raw, "References: <orig@mail.example.com>\n")
}

func TestBuildReplyBody_GreetsSenderByName(t *testing.T) {
	body := buildReplyBody(domain.MessageInfo{SenderName: "Alice"}, nil, domain.QueueState{})
	require.True(t, strings.HasPrefix(body, "Hi Alice, <br> <br>"))

	body = buildReplyBody(domain.MessageInfo{}, nil, domain.QueueState{})
	require.True(t, strings.HasPrefix(body, "Hi, <br> <br>"))
}

func TestBuildReplyBody_UnitsInOrder(t *testing.T) {
	units := []domain.ResponseUnit{
		{Response: "first answer"},
		{Response: "second answer"},
	}
	body := buildReplyBody(domain.MessageInfo{}, units, domain.QueueState{ActiveSession: "sess-a"})
	first := strings.Index(body, "first answer")
	second := strings.Index(body, "second answer")
	require.Greater(t, first, -1)
	require.Greater(t, second, first)
}

func TestBuildReplyBody_IdleHintOnlyWithoutActiveSession(t *testing.T) {
	idle := buildReplyBody(domain.MessageInfo{}, nil, domain.QueueState{})
	require.Contains(t, idle, "no active sessions")

	busy := buildReplyBody(domain.MessageInfo{}, nil, domain.QueueState{ActiveSession: "sess-a"})
	require.NotContains(t, busy, "no active sessions")
}

func TestBuildReplyBody_DiagnosticFooter(t *testing.T) {
	info := domain.MessageInfo{Signature: "Kind regards, Alice"}
	state := domain.QueueState{ActiveSession: "sess-a", Pending: pending("b", "c")}
	body := buildReplyBody(info, nil, state)

	require.Contains(t, body, "<td>Kind regards, Alice</td>")
	require.Contains(t, body, "<td>sess-a</td>")
	require.Contains(t, body, "<td>2</td>")
}
