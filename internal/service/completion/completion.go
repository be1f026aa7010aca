package completion

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"echogate/internal/models"
)

const idPrefix = "chatcmpl-"

// NewID returns a fresh completion id: the prefix plus 128 random bits in hex.
func NewID() string {
	return idPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Assembler builds single-shot completion envelopes.
type Assembler struct {
	Now   func() time.Time
	NewID func() string
}

func NewAssembler() *Assembler {
	return &Assembler{Now: time.Now, NewID: NewID}
}

// Assemble wraps content in a chat.completion object. The timestamp is taken
// at assembly time.
func (a *Assembler) Assemble(model, content string) models.ChatCompletionResponse {
	return models.ChatCompletionResponse{
		ID:      a.NewID(),
		Object:  models.ObjectChatCompletion,
		Created: a.Now().Unix(),
		Model:   model,
		Choices: []models.Choice{
			{
				Index: 0,
				Message: models.ChatMessage{
					Role:    models.RoleAssistant,
					Content: content,
				},
				FinishReason: models.FinishReasonStop,
			},
		},
		Usage: models.Usage{},
	}
}
