package completion

import (
	"bytes"
	"encoding/json"
	"iter"
	"time"

	"github.com/sirupsen/logrus"

	"echogate/internal/models"
)

const (
	DefaultChunkSize = 80
	DoneSentinel     = "[DONE]"
)

// Encoder turns a finished reply into the chat.completion.chunk sequence.
type Encoder struct {
	ChunkSize int
	Now       func() time.Time
	NewID     func() string
}

func NewEncoder(chunkSize int) *Encoder {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Encoder{ChunkSize: chunkSize, Now: time.Now, NewID: NewID}
}

// Segments splits content into runs of at most size code points, in order.
func Segments(content string, size int) []string {
	if content == "" {
		return nil
	}
	runes := []rune(content)
	out := make([]string, 0, (len(runes)+size-1)/size)
	for start := 0; start < len(runes); start += size {
		end := min(start+size, len(runes))
		out = append(out, string(runes[start:end]))
	}
	return out
}

// Chunks yields the role chunk, one content chunk per segment, then the
// terminal chunk. All chunks share one id and timestamp fixed when iteration
// starts.
func (e *Encoder) Chunks(model, content string) iter.Seq[models.ChatCompletionChunk] {
	return func(yield func(models.ChatCompletionChunk) bool) {
		id := e.NewID()
		created := e.Now().Unix()
		chunk := func(delta models.Delta, finish *string) models.ChatCompletionChunk {
			return models.ChatCompletionChunk{
				ID:      id,
				Object:  models.ObjectChatCompletionChunk,
				Created: created,
				Model:   model,
				Choices: []models.ChunkChoice{{Index: 0, Delta: delta, FinishReason: finish}},
			}
		}

		if !yield(chunk(models.Delta{Role: models.RoleAssistant}, nil)) {
			return
		}
		for _, part := range Segments(content, e.ChunkSize) {
			if !yield(chunk(models.Delta{Content: part}, nil)) {
				return
			}
		}
		stop := models.FinishReasonStop
		yield(chunk(models.Delta{}, &stop))
	}
}

// Frames yields wire-ready SSE frames: one `data: <json>` frame per chunk,
// then the `data: [DONE]` sentinel.
func (e *Encoder) Frames(model, content string) iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		for chunk := range e.Chunks(model, content) {
			payload, err := marshalChunk(chunk)
			if err != nil {
				logrus.WithError(err).Error("encode stream chunk")
				return
			}
			if !yield(frame(payload)) {
				return
			}
		}
		yield(frame([]byte(DoneSentinel)))
	}
}

// marshalChunk encodes without HTML escaping so text reaches clients verbatim.
func marshalChunk(chunk models.ChatCompletionChunk) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(chunk); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func frame(data []byte) []byte {
	buf := make([]byte, 0, len(data)+8)
	buf = append(buf, "data: "...)
	buf = append(buf, data...)
	return append(buf, '\n', '\n')
}
