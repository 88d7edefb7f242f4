package dingtalk

import (
	"strings"
)

const (
	// Divider separates the title from the body of a text message.
	Divider = "———————————"
	// DefaultTitle is used when a titled message type is sent without one.
	DefaultTitle = "通知"
	// ReadMoreLabel is the single button caption of an action card.
	ReadMoreLabel = "阅读全文"
)

type MessageType string

const (
	TypeText       MessageType = "text"
	TypeMarkdown   MessageType = "markdown"
	TypeLink       MessageType = "link"
	// TypeActionCard goes on the wire as DingTalk's "actionCard", unlike the
	// lowercase "actioncard" that ParseMessageType also accepts.
	TypeActionCard MessageType = "actionCard"
)

// MessageTypes lists every supported message type in display order.
var MessageTypes = []MessageType{TypeText, TypeLink, TypeMarkdown, TypeActionCard}

// ParseMessageType validates a free-form type hint. Matching is
// case-insensitive and an empty hint means text.
func ParseMessageType(s string) (MessageType, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return TypeText, nil
	}

	for _, t := range MessageTypes {
		if strings.EqualFold(s, string(t)) {
			return t, nil
		}
	}
	return "", &UnsupportedMessageTypeError{Type: s}
}

// Message is one of the four robot message payloads.
type Message interface {
	Type() MessageType
	message()
}

type TextMessage struct {
	Content string `json:"content"`
}

type MarkdownMessage struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

type LinkMessage struct {
	Title      string `json:"title"`
	Text       string `json:"text"`
	PicURL     string `json:"picUrl"`
	MessageURL string `json:"messageUrl"`
}

type ActionCardMessage struct {
	Title          string `json:"title"`
	Text           string `json:"text"`
	BtnOrientation string `json:"btnOrientation"`
	SingleTitle    string `json:"singleTitle"`
	SingleURL      string `json:"singleURL"`
}

func (TextMessage) Type() MessageType       { return TypeText }
func (MarkdownMessage) Type() MessageType   { return TypeMarkdown }
func (LinkMessage) Type() MessageType       { return TypeLink }
func (ActionCardMessage) Type() MessageType { return TypeActionCard }

func (TextMessage) message()       {}
func (MarkdownMessage) message()   {}
func (LinkMessage) message()       {}
func (ActionCardMessage) message() {}

// Notification is a single send request after input validation.
type Notification struct {
	Message    string
	Title      string
	Type       MessageType
	URL        string
	PictureURL string
	AtMobiles  []string
}

// NewMessage renders the notification into its typed payload.
func NewMessage(n Notification) (Message, error) {
	title := n.Title
	if title == "" {
		title = DefaultTitle
	}

	switch n.Type {
	case TypeText, "":
		content := n.Message
		if n.Title != "" {
			content = n.Title + "\n" + Divider + "\n" + n.Message
		}
		return TextMessage{Content: content}, nil
	case TypeMarkdown:
		return MarkdownMessage{Title: title, Text: n.Message}, nil
	case TypeLink:
		return LinkMessage{
			Title:      title,
			Text:       n.Message,
			PicURL:     n.PictureURL,
			MessageURL: n.URL,
		}, nil
	case TypeActionCard:
		return ActionCardMessage{
			Title:          title,
			Text:           n.Message,
			BtnOrientation: "0",
			SingleTitle:    ReadMoreLabel,
			SingleURL:      n.URL,
		}, nil
	default:
		return nil, &UnsupportedMessageTypeError{Type: string(n.Type)}
	}
}
