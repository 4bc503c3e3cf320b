// Package rag composes retrieval, context assembly and answer generation
// into the question-answering service.
package rag

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/hyperjump/kotae/internal/assembler"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/index"
	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/retriever"
)

// NoRelevantInformation is the fixed answer returned when retrieval finds
// nothing to ground a question on.
const NoRelevantInformation = "No relevant information found in the indexed documentation."

// Service runs the full question pipeline: retrieve, assemble, generate.
type Service struct {
	retriever *retriever.Retriever
	assembler *assembler.Assembler
	backend   *llm.Client
	index     index.Index
	config    *config.RetrievalConfig
}

// NewService creates the question-answering service with the given
// dependencies.
func NewService(
	ret *retriever.Retriever,
	asm *assembler.Assembler,
	backend *llm.Client,
	idx index.Index,
	cfg *config.RetrievalConfig,
) *Service {
	return &Service{
		retriever: ret,
		assembler: asm,
		backend:   backend,
		index:     idx,
		config:    cfg,
	}
}

// AnswerQuestion retrieves grounding fragments for the question, assembles
// them into a context block and asks the completion backend for an answer.
// Backend failures surface inside the answer text; index failures are hard
// errors.
func (s *Service) AnswerQuestion(ctx context.Context, question string, k int) (*models.QueryAnswer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is empty", models.ErrInvalidInput)
	}
	k = s.clampK(k)

	results, err := s.retriever.Search(ctx, question, k)
	if err != nil {
		return nil, fmt.Errorf("retrieve context: %w", err)
	}

	if len(results) == 0 {
		return &models.QueryAnswer{
			Question:       question,
			Answer:         NoRelevantInformation,
			Sources:        []string{},
			RetrievedCount: 0,
			ContextChars:   0,
		}, nil
	}

	contextText := s.assembler.Assemble(results)
	prompt := s.backend.BuildPrompt(question, contextText)
	answer := s.backend.Generate(ctx, prompt, "")

	return &models.QueryAnswer{
		Question:       question,
		Answer:         answer,
		Sources:        sourcesOf(results),
		RetrievedCount: len(results),
		ContextChars:   len([]rune(contextText)),
	}, nil
}

// Search returns ranked fragments for the query without any generation.
func (s *Service) Search(ctx context.Context, query string, k int) ([]models.RetrievalResult, error) {
	return s.retriever.Search(ctx, query, s.clampK(k))
}

// Status reports the index and backend state. Probing the backend here
// refreshes its availability and model list as a side effect.
func (s *Service) Status(ctx context.Context) *models.Status {
	s.backend.Probe(ctx)

	count := s.index.Count()
	state := models.IndexStateOnline
	if count == 0 {
		state = models.IndexStateEmpty
	}

	return &models.Status{
		Index: models.IndexStatus{
			State:          state,
			FragmentCount:  count,
			EmbeddingModel: s.index.ModelID(),
		},
		Backend: models.BackendStatus{
			State:           string(s.backend.State()),
			BaseURL:         s.backend.BaseURL(),
			ActiveModel:     s.backend.ActiveModel(),
			AvailableModels: s.backend.Models(),
		},
		Sources: s.index.Sources(),
	}
}

// Sources lists the distinct indexed source IDs, sorted.
func (s *Service) Sources() []string {
	return s.index.Sources()
}

func (s *Service) clampK(k int) int {
	if k <= 0 {
		k = s.config.DefaultK
	}
	if s.config.MaxK > 0 && k > s.config.MaxK {
		k = s.config.MaxK
	}
	return k
}

// sourcesOf deduplicates the source IDs of a result set, sorted for stable
// output.
func sourcesOf(results []models.RetrievalResult) []string {
	seen := make(map[string]bool)
	sources := []string{}
	for _, r := range results {
		if !seen[r.Fragment.SourceID] {
			seen[r.Fragment.SourceID] = true
			sources = append(sources, r.Fragment.SourceID)
		}
	}
	sort.Strings(sources)
	return sources
}
