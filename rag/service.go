// Package rag assembles grounded answers: retrieve relevant chunks, render
// the advisor prompt and call the completion model.
package rag

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/lisakoeritz/aien-api/llm"
	"github.com/lisakoeritz/aien-api/vectorindex"
)

const retrievalLimit = 5

// NoAnswerFound is returned when the completion step yields nothing usable.
// The request still succeeds; the caller decides how to present it.
const NoAnswerFound = "No answer found"

const promptTemplate = `You are an AI Ethics Advisor specializing in ensuring ethical considerations in technological development.

    You will be provided with context from AI ethics guidelines and frameworks.
    Use this context to answer the question related to ethical considerations in technological development.
    Your response should be precise, concise, and directly address the question. If the information is not available in the context, indicate that the answer is not available and do not add additional information.
    Do not introduce information not found in the context provided. Never hallucinate!

Context: %s
Question: %s
Answer:
`

// Retriever is the read-only retrieval handle injected at startup.
// Implemented by *vectorindex.Store.
type Retriever interface {
	Search(ctx context.Context, query string, k int) ([]vectorindex.ScoredChunk, error)
}

// Response pairs the synthesized answer with the chunks it was grounded in,
// in retrieval order.
type Response struct {
	Answer  string
	Context []vectorindex.ScoredChunk
}

type Service struct {
	retriever Retriever
	llm       llm.Client
	logger    *log.Logger
}

func NewService(retriever Retriever, llmClient llm.Client, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		retriever: retriever,
		llm:       llmClient,
		logger:    logger,
	}
}

// Answer retrieves the top chunks for the question and asks the completion
// model to answer from them alone. An empty completion is a soft failure: the
// sentinel answer comes back with no context, never an error.
func (s *Service) Answer(ctx context.Context, question string) (Response, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Response{}, fmt.Errorf("question cannot be empty")
	}
	if s.retriever == nil {
		return Response{}, fmt.Errorf("retriever is not configured")
	}
	if s.llm == nil {
		return Response{}, fmt.Errorf("llm client is not configured")
	}

	chunks, err := s.retriever.Search(ctx, question, retrievalLimit)
	if err != nil {
		return Response{}, fmt.Errorf("retrieve context: %w", err)
	}

	prompt := RenderPrompt(question, chunks)

	answer, err := s.llm.Generate(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}})
	if err != nil {
		return Response{}, fmt.Errorf("generate answer: %w", err)
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		s.logger.Printf("completion returned no answer for question %q", question)
		return Response{Answer: NoAnswerFound}, nil
	}

	return Response{Answer: answer, Context: chunks}, nil
}

// RenderPrompt fills the advisor template with the retrieved chunks and the
// question. The template forbids the model from stepping outside the context.
func RenderPrompt(question string, chunks []vectorindex.ScoredChunk) string {
	var sb strings.Builder
	for i, chunk := range chunks {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(chunk.Content)
	}
	return fmt.Sprintf(promptTemplate, sb.String(), question)
}
