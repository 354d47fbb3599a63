package domain

// MessageInfo is everything extracted from one inbound email that the
// processing pipeline needs downstream.
type MessageInfo struct {
	MessageID  string
	ThreadID   string
	RFCID      string // Message-ID header, used for In-Reply-To
	References string
	From       string
	To         string
	Subject    string
	SenderName string
	Body       string
	CleanBody  string
	Signature  string
	Sentences  []string
}
