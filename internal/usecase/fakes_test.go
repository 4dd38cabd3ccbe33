package usecase_test

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/fairyhunter13/laptop-assistant/internal/domain"
	"github.com/fairyhunter13/laptop-assistant/internal/prompts"
	"github.com/fairyhunter13/laptop-assistant/internal/usecase"
)

var testPrompts = prompts.MustLoad()

// fakeLLM routes requests by their system prompt so one instance can stand in
// for every model call made during a conversation turn.
type fakeLLM struct {
	mu    sync.Mutex
	calls []domain.ChatRequest

	greeting  string
	dialogue  []string
	intent    []string
	dict      string
	mapping   map[string]string
	prose     string
	failChat  error
	mapCalls  map[string]int
	dialogIdx int
	intentIdx int
}

func newFakeLLM() *fakeLLM {
	return &fakeLLM{greeting: "no", mapping: map[string]string{}, mapCalls: map[string]int{}, prose: "1. Best pick\n2. Runner up"}
}

func (f *fakeLLM) Chat(_ context.Context, req domain.ChatRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	first := req.Messages[0].Content
	switch {
	case strings.HasPrefix(first, "Check if the following message"):
		return f.greeting, nil
	case strings.Contains(first, "senior evaluator"):
		if f.intentIdx >= len(f.intent) {
			return `{"result":"No","reason":"no dictionary"}`, nil
		}
		out := f.intent[f.intentIdx]
		f.intentIdx++
		return out, nil
	case strings.Contains(first, "python expert"):
		return f.dict, nil
	case strings.Contains(first, "laptop specifications expert"):
		for desc, out := range f.mapping {
			if strings.Contains(first, "Laptop description: "+desc+"\n") {
				f.mapCalls[desc]++
				return out, nil
			}
		}
		return "", fmt.Errorf("no mapping scripted: %w", domain.ErrSchemaInvalid)
	case strings.Contains(first, "friendly laptop sales"):
		return f.prose, nil
	}
	if f.failChat != nil {
		return "", f.failChat
	}
	if f.dialogIdx >= len(f.dialogue) {
		return "Could you tell me more?", nil
	}
	out := f.dialogue[f.dialogIdx]
	f.dialogIdx++
	return out, nil
}

func (f *fakeLLM) callsMatching(substr string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if strings.Contains(c.Messages[0].Content, substr) {
			n++
		}
	}
	return n
}

// fakeModerator flags any text containing one of its words.
type fakeModerator struct {
	words []string
	err   error
}

func (m fakeModerator) Moderate(_ context.Context, text string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	lower := strings.ToLower(text)
	for _, w := range m.words {
		if strings.Contains(lower, w) {
			return true, nil
		}
	}
	return false, nil
}

type memCatalog struct {
	mu       sync.Mutex
	products []domain.Product
	loadErr  error
	replaced int
}

func (c *memCatalog) Load(context.Context) ([]domain.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loadErr != nil {
		return nil, c.loadErr
	}
	return append([]domain.Product(nil), c.products...), nil
}

func (c *memCatalog) Replace(_ context.Context, products []domain.Product) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products = append([]domain.Product(nil), products...)
	c.replaced++
	return nil
}

type memCache struct {
	mu sync.Mutex
	m  map[string]domain.Profile
}

func newMemCache() *memCache { return &memCache{m: map[string]domain.Profile{}} }

func (c *memCache) Get(_ context.Context, d string) (domain.Profile, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.m[d]
	return p, ok, nil
}

func (c *memCache) Set(_ context.Context, d string, p domain.Profile) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[d] = p
	return nil
}

type recordingEvents struct {
	mu     sync.Mutex
	events []domain.ConversationEvent
}

func (r *recordingEvents) Publish(_ context.Context, ev domain.ConversationEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

type recordingFeedback struct {
	ratings []domain.Rating
}

func (r *recordingFeedback) RecordRating(_ context.Context, rt domain.Rating) error {
	r.ratings = append(r.ratings, rt)
	return nil
}

func noRetry() usecase.RetryPolicy { return usecase.RetryPolicy{MaxAttempts: 1} }

func mappedJSON(gpu, display, port, multi, speed string) string {
	return fmt.Sprintf(`{"GPU intensity":%q,"Display quality":%q,"Portability":%q,"Multitasking":%q,"Processing speed":%q,"Budget":"0"}`,
		gpu, display, port, multi, speed)
}

func mustProfile(gpu, display, port, multi, speed domain.Level, budget int64) domain.Profile {
	return domain.Profile{GPUIntensity: gpu, DisplayQuality: display, Portability: port, Multitasking: multi, ProcessingSpeed: speed, Budget: budget}
}
