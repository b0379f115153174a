package screen

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// DefaultVisionQuestion is asked when the caller has no specific question.
const DefaultVisionQuestion = "Describe what is visible on this screen in two or three sentences."

// Vision describes screenshots through a multimodal chat model.
type Vision struct {
	client oai.Client
	model  string
}

// NewVision creates a vision describer. baseURL is optional and lets the
// same client talk to any OpenAI-compatible local server.
func NewVision(apiKey, model, baseURL string) *Vision {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}),
	}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}
	return &Vision{client: oai.NewClient(reqOpts...), model: model}
}

// Describe sends the image and question to the model and returns its short
// description, or empty on any failure. Callers fall back to OCR.
func (v *Vision) Describe(ctx context.Context, imagePath, question string) string {
	if question == "" {
		question = DefaultVisionQuestion
	}
	data, err := os.ReadFile(imagePath)
	if err != nil {
		slog.Debug("vision: read screenshot failed", "path", imagePath, "err", err)
		return ""
	}
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)

	resp, err := v.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model: shared.ChatModel(v.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.UserMessage([]oai.ChatCompletionContentPartUnionParam{
				oai.TextContentPart(question),
				oai.ImageContentPart(oai.ChatCompletionContentPartImageImageURLParam{
					URL: dataURL,
				}),
			}),
		},
	})
	if err != nil {
		slog.Debug("vision: describe failed", "err", err)
		return ""
	}
	if len(resp.Choices) == 0 {
		return ""
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content)
}
