package dingtalk

import (
	"encoding/json"
)

// At is the mention block of an envelope. IsAtAll is a string on the wire
// and is never set to anything but "false".
type At struct {
	AtMobiles []string `json:"atMobiles"`
	AtUserIDs []string `json:"atUserIds"`
	IsAtAll   string   `json:"isAtAll"`
}

// Envelope is the request body posted to the robot webhook.
type Envelope struct {
	Message Message
	At      At
}

// Build validates the notification and assembles the full request body.
func Build(n Notification) (*Envelope, error) {
	msg, err := NewMessage(n)
	if err != nil {
		return nil, err
	}

	mobiles := n.AtMobiles
	if mobiles == nil {
		mobiles = []string{}
	}

	return &Envelope{
		Message: msg,
		At: At{
			AtMobiles: mobiles,
			AtUserIDs: []string{},
			IsAtAll:   "false",
		},
	}, nil
}

// MsgType is the envelope discriminator.
func (e *Envelope) MsgType() MessageType {
	return e.Message.Type()
}

func (e *Envelope) MarshalJSON() ([]byte, error) {
	if e.Message == nil {
		return nil, errNoMessage
	}

	msgType := string(e.Message.Type())
	return json.Marshal(map[string]interface{}{
		"msgtype": msgType,
		msgType:   e.Message,
		"at":      e.At,
	})
}
