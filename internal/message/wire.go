package message

// ListResponse is the body of GET /api/messages.
type ListResponse struct {
	Messages []Message `json:"messages"`
	Count    int       `json:"count"`
}

// SendResponse is the body of POST /api/messages.
type SendResponse struct {
	Success       bool    `json:"success"`
	Message       Message `json:"message"`
	TotalMessages int     `json:"total_messages"`
	Error         string  `json:"error,omitempty"`
}
