package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/yooscribe/internal/models"
	"github.com/yoockh/yooscribe/internal/providers/llm"
	"github.com/yoockh/yooscribe/internal/repositories/postgres"
	"github.com/yoockh/yooscribe/internal/utils"
)

// Suggestion is one assistant recommendation surfaced to the listener while
// a conversation is being recorded.
type Suggestion struct {
	Type    string `json:"type"` // clarification | follow_up | note
	Title   string `json:"title"`
	Message string `json:"message"`
}

type RecommendationResult struct {
	Suggestions       []Suggestion `json:"suggestions"`
	ContextChunksUsed int          `json:"context_chunks_used"`
}

type MetadataResult struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

type AssistantService interface {
	// Recommend analyzes the latest transcribed chunk of a conversation and
	// suggests clarifications and follow-up questions.
	Recommend(ctx context.Context, conversationID string) (*RecommendationResult, error)
	// GenerateMetadata produces a title and description from the full
	// transcript and stores them unless the user already set their own.
	GenerateMetadata(ctx context.Context, conversationID string) (*MetadataResult, error)
}

type assistantService struct {
	provider   llm.Provider // nil when the assistant is disabled
	convs      postgres.ConversationRepo
	maxContext int
	log        *logrus.Logger
}

func NewAssistantService(provider llm.Provider, convs postgres.ConversationRepo, maxContext int, log *logrus.Logger) AssistantService {
	if maxContext <= 0 {
		maxContext = 5
	}
	return &assistantService{provider: provider, convs: convs, maxContext: maxContext, log: log}
}

func (s *assistantService) Recommend(ctx context.Context, conversationID string) (*RecommendationResult, error) {
	const op = "AssistantService.Recommend"

	if s.provider == nil {
		return nil, utils.E(utils.CodeUnavailable, op, "assistant is not configured", nil)
	}

	conv, err := s.convs.GetWithChunks(ctx, conversationID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "conversation not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get conversation", err)
	}

	texts := transcribedTexts(conv.Chunks)
	if len(texts) == 0 {
		return nil, utils.E(utils.CodeInvalidArgument, op, "no transcribed chunks yet", nil)
	}

	latest := texts[len(texts)-1]
	previous := texts[:len(texts)-1]
	if len(previous) > s.maxContext {
		previous = previous[len(previous)-s.maxContext:]
	}

	prompt := buildRecommendationPrompt(latest, previous, conv.Language)
	answer, err := s.provider.Generate(ctx, prompt)
	if err != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "assistant request failed", err)
	}

	return &RecommendationResult{
		Suggestions:       parseSuggestions(answer),
		ContextChunksUsed: len(previous),
	}, nil
}

func (s *assistantService) GenerateMetadata(ctx context.Context, conversationID string) (*MetadataResult, error) {
	const op = "AssistantService.GenerateMetadata"

	if s.provider == nil {
		return nil, utils.E(utils.CodeUnavailable, op, "assistant is not configured", nil)
	}

	conv, err := s.convs.GetWithChunks(ctx, conversationID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "conversation not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get conversation", err)
	}

	full := strings.Join(transcribedTexts(conv.Chunks), "\n")
	if len(strings.TrimSpace(full)) < 10 {
		return nil, utils.E(utils.CodeInvalidArgument, op, "transcript too short to summarize", nil)
	}

	answer, err := s.provider.Generate(ctx, buildMetadataPrompt(full, conv.Language))
	if err != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "assistant request failed", err)
	}

	title, description := parseMetadata(answer)
	if title == "" && description == "" {
		return nil, utils.E(utils.CodeInternal, op, "could not parse assistant response", nil)
	}
	return &MetadataResult{Title: title, Description: description}, nil
}

func transcribedTexts(chunks []models.Chunk) []string {
	var out []string
	for _, c := range chunks {
		if c.Status == models.ChunkStatusCompleted && strings.TrimSpace(c.TranscriptText) != "" {
			out = append(out, c.TranscriptText)
		}
	}
	return out
}

func languageInstruction(lang, what string) string {
	switch lang {
	case "he":
		return fmt.Sprintf("The conversation is in Hebrew. Generate %s in Hebrew.", what)
	case "en":
		return fmt.Sprintf("The conversation is in English. Generate %s in English.", what)
	default:
		return fmt.Sprintf("Detect the language and generate %s in the same language as the conversation.", what)
	}
}

func buildRecommendationPrompt(latest string, previous []string, lang string) string {
	contextText := "(No previous context)"
	if len(previous) > 0 {
		contextText = strings.Join(previous, "\n---\n")
	}

	return fmt.Sprintf(`You are an AI assistant helping someone understand a live conversation recording.
Your task is to identify:
1. Any ambiguities or unclear references that might need clarification
2. Important points that might need follow-up questions
3. Technical terms or concepts that might need explanation

%s

Previous conversation context:
%s

Latest transcribed segment:
%s

Based on this, generate 1-3 helpful suggestions. For each suggestion, provide:
- type: "clarification" | "follow_up" | "note"
- title: A short title (2-5 words)
- message: The actual suggestion or question (1-2 sentences)

Format your response as a simple list with each suggestion on a new line:
TYPE: <type>
TITLE: <title>
MESSAGE: <message>
---

If the text is too short or there's nothing noteworthy, respond with:
NO_SUGGESTIONS

Keep suggestions concise and actionable. Focus on what would genuinely help the listener.`,
		languageInstruction(lang, "suggestions"), contextText, latest)
}

// parseSuggestions extracts up to three structured suggestions from the
// line-oriented assistant response. Entries with an unknown type but usable
// title and message are kept as notes.
func parseSuggestions(response string) []Suggestion {
	if strings.Contains(response, "NO_SUGGESTIONS") {
		return []Suggestion{}
	}

	var parsed []Suggestion
	var cur Suggestion
	flush := func() {
		if cur.Title != "" || cur.Message != "" || cur.Type != "" {
			parsed = append(parsed, cur)
		}
		cur = Suggestion{}
	}

	for _, line := range strings.Split(strings.TrimSpace(response), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
		case line == "---":
			flush()
		case strings.HasPrefix(line, "TYPE:"):
			cur.Type = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(line, "TYPE:")))
		case strings.HasPrefix(line, "TITLE:"):
			cur.Title = strings.TrimSpace(strings.TrimPrefix(line, "TITLE:"))
		case strings.HasPrefix(line, "MESSAGE:"):
			cur.Message = strings.TrimSpace(strings.TrimPrefix(line, "MESSAGE:"))
		}
	}
	flush()

	valid := []Suggestion{}
	for _, s := range parsed {
		if s.Title == "" || s.Message == "" {
			continue
		}
		switch s.Type {
		case "clarification", "follow_up", "note":
		default:
			s.Type = "note"
		}
		valid = append(valid, s)
		if len(valid) == 3 {
			break
		}
	}
	return valid
}

func buildMetadataPrompt(fullTranscript, lang string) string {
	// Keep the prompt bounded on long recordings: the head and tail carry
	// the topic and the conclusions.
	const maxLength = 4000
	if len(fullTranscript) > maxLength {
		half := maxLength / 2
		fullTranscript = fullTranscript[:half] + "\n\n[...middle section omitted...]\n\n" + fullTranscript[len(fullTranscript)-half:]
	}

	return fmt.Sprintf(`You are an AI assistant analyzing a completed conversation recording.
Your task is to generate:
1. A concise, descriptive TITLE (3-8 words max)
2. A brief DESCRIPTION summarizing the main topics and key points (1-3 sentences)

%s

Conversation transcript:
%s

Based on this conversation, generate:
- A clear, specific title that captures the main topic or purpose
- A description that summarizes key points, decisions, or topics discussed

Format your response exactly as:
TITLE: <your title here>
DESCRIPTION: <your description here>

Be concise and professional. Focus on the actual content and topics discussed.`,
		languageInstruction(lang, "title and description"), fullTranscript)
}

func parseMetadata(response string) (title, description string) {
	for _, line := range strings.Split(strings.TrimSpace(response), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "TITLE:") {
			title = strings.Trim(strings.TrimSpace(strings.TrimPrefix(line, "TITLE:")), "\"'`")
		} else if strings.HasPrefix(line, "DESCRIPTION:") {
			description = strings.Trim(strings.TrimSpace(strings.TrimPrefix(line, "DESCRIPTION:")), "\"'`")
		}
	}
	return title, description
}
