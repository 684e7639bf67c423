package ai

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// ChatMaxRunes bounds how much document context goes with a chat message.
const ChatMaxRunes = 10000

const chatSystem = "You are a helpful AI assistant specialized in document analysis and content creation. Be concise and helpful."

// ChatPrompt builds the prompt for one chat turn. documentText may be
// empty.
func ChatPrompt(documentText, message string) string {
	var sb strings.Builder
	sb.WriteString(chatSystem)
	if doc := strings.TrimSpace(documentText); doc != "" {
		sb.WriteString("\n\nThe user has a document open with the following content:\n\n")
		sb.WriteString(Truncate(doc, ChatMaxRunes))
		sb.WriteString("\n\nUse this context to answer questions about the document or generate relevant content.")
	}
	sb.WriteString("\n\nUser: ")
	sb.WriteString(message)
	return sb.String()
}

// Chat sends one message and returns the model's reply as-is.
func (c *Client) Chat(ctx context.Context, apiKey, documentText, message string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", fmt.Errorf("%w: empty message", ErrNoInput)
	}
	reply, err := c.Generate(ctx, apiKey, ChatPrompt(documentText, message))
	c.metrics.ObserveAI("chat", err)
	if err != nil {
		return "", err
	}
	return reply, nil
}

var markdown = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		extension.Strikethrough,
	),
	goldmark.WithRendererOptions(
		html.WithHardWraps(),
	),
)

// RenderHTML renders a chat reply as HTML. Raw HTML in the reply is
// omitted.
func RenderHTML(reply string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(reply), &buf); err != nil {
		return "", fmt.Errorf("failed to render reply: %w", err)
	}
	return buf.String(), nil
}
