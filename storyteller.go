package main

import (
	"context"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"dewolf/internal/engine"
)

const storytellerSystemPrompt = `You are a dramatic storyteller for a medieval werewolf game. When players are killed, you tell a short atmospheric story about their fate. Keep it to 2-3 sentences. Be gothic and dramatic, fitting for a village plagued by werewolves.`

// Storyteller generates a dramatic story after deaths in the game.
// onChunk is called with each text chunk as it streams in.
type Storyteller interface {
	Tell(ctx context.Context, history []string, onChunk func(string)) (string, error)
}

type llmStoryteller struct {
	llm          llms.Model
	systemPrompt string
	callOpts     []llms.CallOption
}

func (s *llmStoryteller) Tell(ctx context.Context, history []string, onChunk func(string)) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, s.systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman,
			"Game history so far:\n"+strings.Join(history, "\n")+
				"\n\nTell a short dramatic story (2-3 sentences) about what just happened to the victim."),
	}

	var fullText strings.Builder
	opts := append(s.callOpts, llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
		text := string(chunk)
		fullText.WriteString(text)
		if onChunk != nil {
			onChunk(text)
		}
		return nil
	}))

	_, err := s.llm.GenerateContent(ctx, messages, opts...)
	return strings.TrimSpace(fullText.String()), err
}

// buildCallOpts builds LLM call options from the config.
func buildCallOpts(cfg AppConfig) []llms.CallOption {
	var opts []llms.CallOption

	if cfg.StorytellerTemperature != "" {
		if f, err := strconv.ParseFloat(cfg.StorytellerTemperature, 64); err == nil {
			opts = append(opts, llms.WithTemperature(f))
			log.Printf("Storyteller: temperature=%.2f", f)
		} else {
			log.Printf("Storyteller: invalid temperature %q: %v", cfg.StorytellerTemperature, err)
		}
	}

	if cfg.StorytellerThinking != "" {
		mode := llms.ThinkingMode(cfg.StorytellerThinking)
		switch mode {
		case llms.ThinkingModeNone, llms.ThinkingModeLow, llms.ThinkingModeMedium, llms.ThinkingModeHigh, llms.ThinkingModeAuto:
			opts = append(opts, llms.WithThinkingMode(mode))
			log.Printf("Storyteller: thinking=%s", mode)
		default:
			log.Printf("Storyteller: invalid thinking %q (valid: none, low, medium, high, auto)", cfg.StorytellerThinking)
		}
	}

	return opts
}

// newStoryteller builds the configured storyteller. It returns nil when no
// provider is configured or the provider cannot be set up.
func newStoryteller(cfg AppConfig) Storyteller {
	provider := cfg.StorytellerProvider
	model := cfg.StorytellerModel
	callOpts := buildCallOpts(cfg)

	var (
		llm llms.Model
		err error
	)
	switch provider {
	case "ollama":
		llm, err = ollama.New(ollama.WithModel(model), ollama.WithServerURL(cfg.StorytellerOllamaURL))
	case "openai":
		llm, err = openai.New(openai.WithModel(model))
	case "claude":
		llm, err = anthropic.New(anthropic.WithModel(model))
	case "gemini":
		llm, err = googleai.New(context.Background(), googleai.WithDefaultModel(model))
	case "groq":
		llm, err = openai.New(
			openai.WithModel(model),
			openai.WithBaseURL("https://api.groq.com/openai/v1"),
			openai.WithToken(cfg.GroqAPIKey),
		)
	case "openai-compatible":
		if cfg.StorytellerURL == "" {
			log.Printf("Storyteller: storyteller_url is required for openai-compatible provider")
			return nil
		}
		opts := []openai.Option{
			openai.WithModel(model),
			openai.WithBaseURL(cfg.StorytellerURL),
		}
		if cfg.StorytellerAPIKey != "" {
			opts = append(opts, openai.WithToken(cfg.StorytellerAPIKey))
		}
		llm, err = openai.New(opts...)
	case "":
		log.Printf("Storyteller: disabled (set storyteller_provider to enable)")
		return nil
	default:
		log.Printf("Storyteller: unknown provider %q", provider)
		return nil
	}
	if err != nil {
		log.Printf("Storyteller: failed to init %s (%s): %v", provider, model, err)
		return nil
	}
	log.Printf("Storyteller: %s model=%s", provider, model)
	return &llmStoryteller{llm: llm, systemPrompt: storytellerSystemPrompt, callOpts: callOpts}
}

const (
	storyTimeout  = 30 * time.Second
	storyFlushGap = 300 * time.Millisecond
)

// narratingPresenter tells a story to the group after each round of deaths.
// Every other event passes straight through.
type narratingPresenter struct {
	*hubPresenter
	teller Storyteller

	mu      sync.Mutex
	history []string
}

func newNarratingPresenter(hp *hubPresenter, teller Storyteller) *narratingPresenter {
	return &narratingPresenter{hubPresenter: hp, teller: teller}
}

func (np *narratingPresenter) remember(line string) {
	np.mu.Lock()
	np.history = append(np.history, line)
	np.mu.Unlock()
}

// forget drops the history of a game that is being replayed.
func (np *narratingPresenter) forget() {
	np.mu.Lock()
	np.history = nil
	np.mu.Unlock()
}

func (np *narratingPresenter) snapshot() []string {
	np.mu.Lock()
	defer np.mu.Unlock()
	return append([]string(nil), np.history...)
}

func (np *narratingPresenter) OnPhaseEnter(phase engine.Phase, info engine.PhaseInfo) {
	np.hubPresenter.OnPhaseEnter(phase, info)
	if phase == engine.PhaseNight {
		np.remember("Night " + strconv.Itoa(info.Night) + " falls over the village.")
	}
}

func (np *narratingPresenter) OnVoteResult(res engine.VoteResult) {
	np.hubPresenter.OnVoteResult(res)
	if res.Eliminated != "" {
		np.remember("The village voted out " + np.name(res.Eliminated) + ".")
	}
}

func (np *narratingPresenter) OnDeaths(ids []engine.PlayerID) {
	np.hubPresenter.OnDeaths(ids)
	if len(ids) == 0 {
		return
	}
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = np.name(id)
	}
	np.remember("Found dead at dawn: " + strings.Join(names, ", ") + ".")
	go np.tell(np.snapshot())
}

// tell streams a story to the group, flushing the text so far every
// storyFlushGap, and stores the finished story in the game log.
func (np *narratingPresenter) tell(history []string) {
	var mu sync.Mutex
	var buf strings.Builder

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(storyFlushGap)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				mu.Lock()
				text := buf.String()
				mu.Unlock()
				if text != "" {
					np.toGroup(ServerEvent{Type: "story", Text: strings.TrimSpace(text)})
				}
			case <-done:
				return
			}
		}
	}()

	ctx, cancel := context.WithTimeout(np.app.ctx, storyTimeout)
	defer cancel()
	story, err := np.teller.Tell(ctx, history, func(chunk string) {
		mu.Lock()
		buf.WriteString(chunk)
		mu.Unlock()
	})
	close(done)

	if err != nil {
		log.Printf("Storyteller error for %s: %v", np.groupID, err)
		return
	}
	if story == "" {
		return
	}
	np.toGroup(ServerEvent{Type: "story", Text: story})
	np.remember(story)
	np.record("%s", story)
	log.Printf("Storyteller: completed story for %s", np.groupID)
}
