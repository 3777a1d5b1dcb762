package llm

// ApiStream represents a stream of API response chunks. The channel is
// closed by the producer when the stream terminates for any reason.
type ApiStream <-chan ApiStreamChunk

// ApiStreamChunk represents different types of streaming responses
type ApiStreamChunk interface {
	Type() string
}

// ApiStreamTextChunk carries one incremental text token, never cumulative
// text. Callers accumulate.
type ApiStreamTextChunk struct {
	Text string `json:"text"`
}

func (c ApiStreamTextChunk) Type() string { return "text" }

// ApiStreamErrorChunk carries a mid-stream protocol error event. The
// producer closes the stream immediately after sending one.
type ApiStreamErrorChunk struct {
	Err error `json:"-"`
}

func (c ApiStreamErrorChunk) Type() string { return "error" }

// ApiStreamUsageChunk carries token usage reported at end of stream.
type ApiStreamUsageChunk struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

func (c ApiStreamUsageChunk) Type() string { return "usage" }
