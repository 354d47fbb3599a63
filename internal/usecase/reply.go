package usecase

import (
	"fmt"
	"strings"

	"support-mail-agent/internal/domain"
)

// buildReply assembles the full RFC822 reply for a processed message: the
// HTML body from the response units plus the threading headers Gmail needs to
// keep the reply in the original conversation.
func buildReply(info domain.MessageInfo, units []domain.ResponseUnit, state domain.QueueState) string {
	headers := []string{
		"From: " + info.To,
		"To: " + info.From,
		"References: " + strings.TrimSpace(info.References+" "+info.RFCID),
		"In-Reply-To: " + info.RFCID,
		"Content-Type: text/html; charset=utf-8",
		"MIME-Version: 1.0",
		"Subject: Re: " + info.Subject,
		"",
		buildReplyBody(info, units, state),
		"",
	}
	return strings.Join(headers, "\n")
}

func buildReplyBody(info domain.MessageInfo, units []domain.ResponseUnit, state domain.QueueState) string {
	var b strings.Builder

	if info.SenderName != "" {
		fmt.Fprintf(&b, "Hi %s, <br> <br>", info.SenderName)
	} else {
		b.WriteString("Hi, <br> <br>")
	}

	for _, u := range units {
		b.WriteString(u.Response)
		b.WriteString("<br>")
	}

	if state.ActiveSession == "" {
		b.WriteString("<br> There are no active sessions with your virtual agent. Feel free to ask about opening or closing a support ticket. <br> <br>")
	}

	b.WriteString("Have a nice day! <br> Support Bot <br>")

	// Diagnostic footer mirroring what the agent believes about the thread.
	b.WriteString("<br><table border=\"1\"><tbody>")
	fmt.Fprintf(&b, "<tr><td>Extracted Signature:</td><td>%s</td></tr>", info.Signature)
	fmt.Fprintf(&b, "<tr><td>Active Session:</td><td>%s</td></tr>", state.ActiveSession)
	fmt.Fprintf(&b, "<tr><td>Remaining Intents:</td><td>%d</td></tr>", len(state.Pending))
	b.WriteString("</tbody></table>")

	return b.String()
}
