package generator

import (
	"context"
	"encoding/json"
	"fmt"
)

// ── MockClient — Local Development ─────────────────────────

type MockClient struct{}

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) Generate(ctx context.Context, systemPrompt string, userPrompt string, temperature float64, maxTokens int) (*LLMResponse, error) {
	return &LLMResponse{
		Content:      buildMockJSON(),
		FinishReason: "end_turn",
		PromptTokens: 1200,
		OutputTokens: 900,
	}, nil
}

func buildMockJSON() string {
	body := "One day, Lila the fox found a shiny rock near the river. " +
		"She wondered what made it sparkle so much in the sun. " +
		"Suddenly, an old turtle appeared and told her it was a piece of quartz. " +
		"Quartz is a mineral that forms deep inside the earth, he explained. " +
		"Lila listened carefully and asked many questions about rocks and minerals. " +
		"Then she decided to start her own collection of interesting stones. " +
		"Every afternoon she searched the riverbank for new treasures. " +
		"Finally, Lila showed her collection to all her friends, and they started collecting too."

	types := []string{"literal", "inference", "vocabulary", "summary"}
	prompts := []string{
		"What did Lila find near the river?",
		"Why did Lila's friends start collecting stones?",
		"What does the word 'mineral' mean in the story?",
		"What is this story mostly about?",
	}

	questions := "["
	for i, qt := range types {
		if i > 0 {
			questions += ","
		}
		opts, _ := json.Marshal([]string{
			fmt.Sprintf("Mock option one for question %d", i+1),
			fmt.Sprintf("Mock option two for question %d", i+1),
			fmt.Sprintf("Mock option three for question %d", i+1),
			fmt.Sprintf("Mock option four for question %d", i+1),
		})
		questions += fmt.Sprintf(
			`{"type":%q,"prompt":%q,"options":%s,"correct_index":%d,"explanation":"Mock explanation for question %d.","difficulty":3}`,
			qt, prompts[i], opts, i%4, i+1)
	}
	questions += "]"

	payload := fmt.Sprintf(
		`{"title":"Lila and the Shiny Rock","body":%q,"new_vocabulary":["quartz","mineral"],"questions":%s}`,
		body, questions)
	return payload
}
