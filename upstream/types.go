package upstream

type chatCompletionRequest struct {
	Messages []chatMessage `json:"messages"`
	Model    string        `json:"model"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []choice `json:"choices"`
}

type choice struct {
	Message *chatMessage `json:"message"`
}

// reply extracts the first choice's text, falling back when it is absent.
func (r *chatCompletionResponse) reply() string {
	if len(r.Choices) == 0 || r.Choices[0].Message == nil || r.Choices[0].Message.Content == "" {
		return FallbackReply
	}
	return r.Choices[0].Message.Content
}
