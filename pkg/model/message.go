package model

type Role string

const (
	RoleUser Role = "user"
	RoleAI   Role = "ai"
)

// APIRole maps a stored role to the role name of the remote chat endpoint
func (r Role) APIRole() string {
	if r == RoleAI {
		return "assistant"
	}
	return string(r)
}

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Segments parses the message content with the default parser
func (m *Message) Segments() []Segment {
	return DefaultParser.Parse(m.Content)
}

func CloneMessages(msgs []*Message) []*Message {
	out := make([]*Message, 0, len(msgs))
	for _, m := range msgs {
		if m == nil {
			continue
		}
		c := *m
		out = append(out, &c)
	}
	return out
}
