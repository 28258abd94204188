package services

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yoockh/yooscribe/internal/models"
)

type scriptedLLM struct {
	answer  string
	err     error
	prompts []string
}

func (s *scriptedLLM) Generate(_ context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	return s.answer, s.err
}

func (s *scriptedLLM) StreamAnswer(context.Context, string) (<-chan string, <-chan error) {
	out := make(chan string)
	errs := make(chan error)
	close(out)
	close(errs)
	return out, errs
}

func (s *scriptedLLM) Close() error { return nil }

func TestParseSuggestions(t *testing.T) {
	response := `TYPE: clarification
TITLE: Who is Dana
MESSAGE: The speaker mentions Dana without introduction; ask who she is.
---
TYPE: banana
TITLE: Budget figure
MESSAGE: Confirm whether the budget is monthly or quarterly.
---
TYPE: follow_up
TITLE: Next milestone
MESSAGE: Ask for the date of the next milestone.
---
TYPE: note
TITLE: Acronym used
MESSAGE: SLA was mentioned; may need expansion.
---`

	got := parseSuggestions(response)

	// Capped at three; unknown type degrades to note.
	require.Len(t, got, 3)
	assert.Equal(t, "clarification", got[0].Type)
	assert.Equal(t, "note", got[1].Type)
	assert.Equal(t, "Budget figure", got[1].Title)
	assert.Equal(t, "follow_up", got[2].Type)
}

func TestParseSuggestionsNoSuggestions(t *testing.T) {
	assert.Empty(t, parseSuggestions("NO_SUGGESTIONS"))
	assert.Empty(t, parseSuggestions("Sure! NO_SUGGESTIONS - nothing noteworthy here."))
}

func TestParseSuggestionsDropsIncomplete(t *testing.T) {
	response := `TYPE: note
TITLE: Missing message
---
TYPE: note
TITLE: Complete one
MESSAGE: This one is fine.`

	got := parseSuggestions(response)
	require.Len(t, got, 1)
	assert.Equal(t, "Complete one", got[0].Title)
}

func TestParseMetadata(t *testing.T) {
	title, desc := parseMetadata("TITLE: \"Quarterly Planning Sync\"\nDESCRIPTION: Discussed budget and hiring.\n")
	assert.Equal(t, "Quarterly Planning Sync", title)
	assert.Equal(t, "Discussed budget and hiring.", desc)

	title, desc = parseMetadata("I could not summarize this.")
	assert.Empty(t, title)
	assert.Empty(t, desc)
}

func newAssistantFixture(answer string) (*scriptedLLM, *fakeChunkRepo, *fakeConvRepo, AssistantService) {
	chunks := newFakeChunkRepo()
	convs := newFakeConvRepo(chunks)
	provider := &scriptedLLM{answer: answer}
	svc := NewAssistantService(provider, convs, 2, discardLogger())
	return provider, chunks, convs, svc
}

func seedConversation(t *testing.T, chunks *fakeChunkRepo, convs *fakeConvRepo, texts ...string) string {
	t.Helper()
	conv := &models.Conversation{ID: "conv-1", Status: models.ConversationStatusRecording, Language: "en"}
	require.NoError(t, convs.Insert(context.Background(), conv))
	for i, text := range texts {
		idx := i
		require.NoError(t, chunks.Insert(context.Background(), &models.Chunk{
			ID:             fmt.Sprintf("c%d", i),
			ConversationID: &conv.ID,
			ChunkIndex:     &idx,
			Status:         models.ChunkStatusCompleted,
			TranscriptText: text,
		}))
	}
	return conv.ID
}

func TestRecommendUsesBoundedContext(t *testing.T) {
	provider, chunks, convs, svc := newAssistantFixture(
		"TYPE: note\nTITLE: A thing\nMESSAGE: Something useful.\n")
	id := seedConversation(t, chunks, convs, "first", "second", "third", "fourth")

	res, err := svc.Recommend(context.Background(), id)
	require.NoError(t, err)

	require.Len(t, res.Suggestions, 1)
	assert.Equal(t, 2, res.ContextChunksUsed) // capped by maxContext

	prompt := provider.prompts[0]
	assert.Contains(t, prompt, "fourth")          // latest segment
	assert.Contains(t, prompt, "second\n---\nthird") // bounded context window
	assert.NotContains(t, prompt, "first")
}

func TestRecommendNoTranscribedChunks(t *testing.T) {
	_, chunks, convs, svc := newAssistantFixture("irrelevant")
	conv := &models.Conversation{ID: "conv-2", Status: models.ConversationStatusRecording}
	require.NoError(t, convs.Insert(context.Background(), conv))
	idx := 0
	require.NoError(t, chunks.Insert(context.Background(), &models.Chunk{
		ID: "c0", ConversationID: &conv.ID, ChunkIndex: &idx,
		Status: models.ChunkStatusPending,
	}))

	_, err := svc.Recommend(context.Background(), conv.ID)
	require.Error(t, err)
}

func TestGenerateMetadata(t *testing.T) {
	_, chunks, convs, svc := newAssistantFixture(
		"TITLE: Project Kickoff\nDESCRIPTION: Roles, scope and schedule were agreed.")
	id := seedConversation(t, chunks, convs, "we agreed on the roles, scope, and the overall schedule today")

	res, err := svc.GenerateMetadata(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Project Kickoff", res.Title)
	assert.Equal(t, "Roles, scope and schedule were agreed.", res.Description)
}

func TestGenerateMetadataShortTranscript(t *testing.T) {
	_, chunks, convs, svc := newAssistantFixture("irrelevant")
	id := seedConversation(t, chunks, convs, "hi")

	_, err := svc.GenerateMetadata(context.Background(), id)
	require.Error(t, err)
}

func TestAssistantDisabled(t *testing.T) {
	chunks := newFakeChunkRepo()
	convs := newFakeConvRepo(chunks)
	svc := NewAssistantService(nil, convs, 5, discardLogger())

	_, err := svc.Recommend(context.Background(), "any")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "not configured"))
}
