package dingtalk

// Invocation is the free-form notify call accepted from callers:
// {"message": ..., "title": ..., "data": {"type", "url", "picurl"}, "target": [mobiles]}.
type Invocation struct {
	Message string          `json:"message"`
	Title   string          `json:"title,omitempty"`
	Data    *InvocationData `json:"data,omitempty"`
	Target  []string        `json:"target,omitempty"`
}

type InvocationData struct {
	Type   string `json:"type,omitempty"`
	URL    string `json:"url,omitempty"`
	PicURL string `json:"picurl,omitempty"`
}

// Notification validates the invocation into a Notification. The type hint
// is the only field that can be rejected.
func (inv Invocation) Notification() (Notification, error) {
	var data InvocationData
	if inv.Data != nil {
		data = *inv.Data
	}

	msgType, err := ParseMessageType(data.Type)
	if err != nil {
		return Notification{}, err
	}

	return Notification{
		Message:    inv.Message,
		Title:      inv.Title,
		Type:       msgType,
		URL:        data.URL,
		PictureURL: data.PicURL,
		AtMobiles:  inv.Target,
	}, nil
}
