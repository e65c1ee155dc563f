// Package chain implements the history-aware answering flow behind the chat
// endpoint. Each query runs three stages: the question is first rewritten
// into a standalone form using the conversation history, the rewritten
// question drives retrieval of relevant document chunks, and the chunks plus
// history feed the final answer generation.
package chain

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/ZeeshanML/rag-chatbot-go/internal/rag"
	"github.com/ZeeshanML/rag-chatbot-go/internal/store"
)

// contextualizePrompt instructs the model to resolve pronouns and elliptical
// references against the chat history without answering the question.
const contextualizePrompt = `Given a chat history and the latest user question which might reference context in the chat history, formulate a standalone question which can be understood without the chat history. Do NOT answer the question, just reformulate it if needed and otherwise return it as is.`

// answerPrompt frames the final generation around the retrieved context.
const answerPrompt = `You are a helpful assistant. Use the following pieces of retrieved context to answer the user's question. If the context does not contain the answer, say so instead of guessing.

Context:
%s`

// ModelSource hands out chat models by name. provider.Registry satisfies it.
type ModelSource interface {
	// Model returns a chat model for the given name; empty selects the default.
	Model(ctx context.Context, name string) (model.BaseChatModel, error)
	// DefaultModelName returns the name used when a request does not specify one.
	DefaultModelName() string
}

// Chain answers questions over the indexed document corpus.
type Chain struct {
	// models resolves per-request model overrides.
	models ModelSource

	// retriever fetches relevant chunks for the rewritten question.
	retriever rag.Retriever

	// topK is the number of chunks retrieved per query.
	topK int
}

// New constructs a Chain. topK defaults to 2 when non-positive.
func New(models ModelSource, retriever rag.Retriever, topK int) (*Chain, error) {
	if models == nil {
		return nil, fmt.Errorf("chain: model source must not be nil")
	}
	if retriever == nil {
		return nil, fmt.Errorf("chain: retriever must not be nil")
	}
	if topK <= 0 {
		topK = 2
	}
	return &Chain{models: models, retriever: retriever, topK: topK}, nil
}

// Result holds the outcome of one chain invocation.
type Result struct {
	// Answer is the generated response text.
	Answer string
	// Model is the model name that produced the answer.
	Model string
}

// Answer runs the full three-stage flow for one question. history holds the
// prior turns of the session, oldest first; modelName optionally overrides
// the default chat model for this request.
func (c *Chain) Answer(ctx context.Context, question, modelName string, history []store.Message) (*Result, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("chain: question must not be empty")
	}

	resolved := modelName
	if resolved == "" {
		resolved = c.models.DefaultModelName()
	}
	chatModel, err := c.models.Model(ctx, modelName)
	if err != nil {
		return nil, fmt.Errorf("chain: resolve model %q: %w", resolved, err)
	}

	standalone, err := c.contextualize(ctx, chatModel, question, history)
	if err != nil {
		return nil, err
	}

	// Each stage feeds the next; a retrieval failure fails the turn rather
	// than degrading to an unanchored answer.
	docs, err := c.retriever.Retrieve(ctx, standalone, c.topK)
	if err != nil {
		return nil, fmt.Errorf("chain: retrieve context: %w", err)
	}

	answer, err := c.generate(ctx, chatModel, question, history, docs)
	if err != nil {
		return nil, err
	}

	return &Result{Answer: answer, Model: resolved}, nil
}

// contextualize rewrites the question into standalone form. With no history
// the question already stands alone and the model call is skipped.
func (c *Chain) contextualize(ctx context.Context, chatModel model.BaseChatModel, question string, history []store.Message) (string, error) {
	if len(history) == 0 {
		return question, nil
	}

	messages := make([]*schema.Message, 0, len(history)+2)
	messages = append(messages, schema.SystemMessage(contextualizePrompt))
	messages = append(messages, historyMessages(history)...)
	messages = append(messages, schema.UserMessage(question))

	resp, err := chatModel.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("chain: contextualize question: %w", err)
	}
	standalone := strings.TrimSpace(resp.Content)
	if standalone == "" {
		return question, nil
	}
	return standalone, nil
}

// generate produces the final answer from the retrieved chunks and history.
func (c *Chain) generate(ctx context.Context, chatModel model.BaseChatModel, question string, history []store.Message, docs []rag.Document) (string, error) {
	messages := make([]*schema.Message, 0, len(history)+2)
	messages = append(messages, schema.SystemMessage(fmt.Sprintf(answerPrompt, formatContext(docs))))
	messages = append(messages, historyMessages(history)...)
	messages = append(messages, schema.UserMessage(question))

	resp, err := chatModel.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("chain: generate answer: %w", err)
	}
	return resp.Content, nil
}

// historyMessages converts stored turns into eino schema messages.
func historyMessages(history []store.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case store.RoleUser:
			out = append(out, schema.UserMessage(m.Content))
		case store.RoleAssistant:
			out = append(out, schema.AssistantMessage(m.Content, nil))
		}
	}
	return out
}

// formatContext renders retrieved chunks for the answer prompt.
func formatContext(docs []rag.Document) string {
	if len(docs) == 0 {
		return "(no relevant documents found)"
	}
	var sb strings.Builder
	for i, doc := range docs {
		fmt.Fprintf(&sb, "[%d] %s\n%s\n\n", i+1, doc.Source, doc.Content)
	}
	return strings.TrimRight(sb.String(), "\n")
}
