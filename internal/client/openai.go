package client

import (
	"context"
	"io"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient wraps the OpenAI API client.
type OpenAIClient struct {
	client      *openai.Client
	model       string
	speechModel openai.SpeechModel
}

// ChatOptions tune one chat completion.
type ChatOptions struct {
	System      string
	MaxTokens   int
	Temperature float32
}

// NewOpenAIClient creates a new OpenAI client.
func NewOpenAIClient(apiKey string) *OpenAIClient {
	return &OpenAIClient{
		client:      openai.NewClient(apiKey),
		model:       openai.GPT4oMini,
		speechModel: openai.TTSModel1,
	}
}

// WithModel sets the chat model to use.
func (c *OpenAIClient) WithModel(model string) *OpenAIClient {
	if model != "" {
		c.model = model
	}
	return c
}

// WithSpeechModel sets the text-to-speech model to use.
func (c *OpenAIClient) WithSpeechModel(model string) *OpenAIClient {
	if model != "" {
		c.speechModel = openai.SpeechModel(model)
	}
	return c
}

// Chat sends a single user message, optionally preceded by a system message.
func (c *OpenAIClient) Chat(ctx context.Context, message string, opts ChatOptions) (string, error) {
	var messages []openai.ChatCompletionMessage
	if opts.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: opts.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: message,
	})

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	})
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", nil
	}

	return resp.Choices[0].Message.Content, nil
}

// Speech synthesizes text as MP3. The caller must close the returned stream.
func (c *OpenAIClient) Speech(ctx context.Context, text, voice string, speed float64) (io.ReadCloser, error) {
	resp, err := c.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          c.speechModel,
		Input:          text,
		Voice:          openai.SpeechVoice(voice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
		Speed:          speed,
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Transcribe runs Whisper over one audio clip. filename tells the API the
// container format, e.g. "chunk.webm".
func (c *OpenAIClient) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	resp, err := c.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: filename,
		Reader:   audio,
		Language: "en",
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}
