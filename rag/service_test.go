package rag_test

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"testing"

	"github.com/lisakoeritz/aien-api/llm"
	"github.com/lisakoeritz/aien-api/rag"
	"github.com/lisakoeritz/aien-api/vectorindex"
)

type stubRetriever struct {
	results []vectorindex.ScoredChunk
	err     error
	calls   int
}

func (s *stubRetriever) Search(ctx context.Context, query string, k int) ([]vectorindex.ScoredChunk, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.results, nil
}

var _ rag.Retriever = (*stubRetriever)(nil)

type stubLLM struct {
	answer  string
	err     error
	prompts []string
}

func (s *stubLLM) Generate(ctx context.Context, messages []llm.Message) (string, error) {
	for _, msg := range messages {
		s.prompts = append(s.prompts, msg.Content)
	}
	if s.err != nil {
		return "", s.err
	}
	return s.answer, nil
}

var _ llm.Client = (*stubLLM)(nil)

func testChunks() []vectorindex.ScoredChunk {
	return []vectorindex.ScoredChunk{
		{
			ChunkID:    "chunk-1",
			DocumentID: "1",
			Content:    "Trustworthy AI rests on lawfulness, ethics and robustness.",
			Metadata:   map[string]any{"source": "https://example.org/doc1", "page": 2},
			Score:      0.9,
		},
		{
			ChunkID:    "chunk-2",
			DocumentID: "3",
			Content:    "Human oversight must remain possible at all times.",
			Metadata:   map[string]any{"source": "https://example.org/doc3", "page": 7},
			Score:      0.7,
		},
	}
}

func TestAnswerReturnsGroundedResponse(t *testing.T) {
	retriever := &stubRetriever{results: testChunks()}
	model := &stubLLM{answer: "Trustworthy AI requires lawfulness, ethics and robustness."}
	svc := rag.NewService(retriever, model, log.New(io.Discard, "", 0))

	resp, err := svc.Answer(context.Background(), "What are the key principles of trustworthy AI?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Answer != model.answer {
		t.Fatalf("unexpected answer: %q", resp.Answer)
	}
	if len(resp.Context) != 2 {
		t.Fatalf("expected retrieved chunks in the response, got %d", len(resp.Context))
	}
	if resp.Context[0].ChunkID != "chunk-1" {
		t.Fatal("retrieval order must be preserved")
	}
}

func TestAnswerPromptContainsOnlyRetrievedContext(t *testing.T) {
	chunks := testChunks()
	retriever := &stubRetriever{results: chunks}
	model := &stubLLM{answer: "The answer is not available in the provided context."}
	svc := rag.NewService(retriever, model, log.New(io.Discard, "", 0))

	question := "What is the capital of France?"
	resp, err := svc.Answer(context.Background(), question)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(model.prompts) != 1 {
		t.Fatalf("expected a single prompt, got %d", len(model.prompts))
	}
	prompt := model.prompts[0]

	for _, chunk := range chunks {
		if !strings.Contains(prompt, chunk.Content) {
			t.Fatalf("prompt is missing retrieved chunk %q", chunk.ChunkID)
		}
	}
	if !strings.Contains(prompt, question) {
		t.Fatal("prompt is missing the question")
	}
	if !strings.Contains(prompt, "indicate that the answer is not available") {
		t.Fatal("prompt must instruct the model to admit missing answers")
	}
	if !strings.Contains(resp.Answer, "not available") {
		t.Fatalf("expected an unavailable answer, got %q", resp.Answer)
	}
}

func TestAnswerSoftFailsOnEmptyCompletion(t *testing.T) {
	retriever := &stubRetriever{results: testChunks()}
	svc := rag.NewService(retriever, &stubLLM{answer: "   "}, log.New(io.Discard, "", 0))

	resp, err := svc.Answer(context.Background(), "anything")
	if err != nil {
		t.Fatalf("empty completion must not fail the request: %v", err)
	}
	if resp.Answer != rag.NoAnswerFound {
		t.Fatalf("expected sentinel answer, got %q", resp.Answer)
	}
	if len(resp.Context) != 0 {
		t.Fatalf("sentinel response must carry no context, got %d chunks", len(resp.Context))
	}
}

func TestAnswerSurfacesMissingCollection(t *testing.T) {
	retriever := &stubRetriever{err: vectorindex.ErrCollectionNotFound}
	svc := rag.NewService(retriever, &stubLLM{answer: "unused"}, log.New(io.Discard, "", 0))

	_, err := svc.Answer(context.Background(), "anything")
	if !errors.Is(err, vectorindex.ErrCollectionNotFound) {
		t.Fatalf("expected collection-not-found to propagate, got %v", err)
	}
}

func TestAnswerValidatesQuestion(t *testing.T) {
	svc := rag.NewService(&stubRetriever{}, &stubLLM{}, log.New(io.Discard, "", 0))
	if _, err := svc.Answer(context.Background(), "   "); err == nil {
		t.Fatal("expected error for empty question")
	}
}
