package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"copyforge/internal/config"
)

// GeminiClient implements Client on the Google GenAI SDK, mapping the
// two tiers to two models with different cost rates.
type GeminiClient struct {
	client *genai.Client
	cfg    config.GenerationConfig
	log    *zap.Logger
}

// NewGeminiClient builds the Gemini-backed generation client.
func NewGeminiClient(ctx context.Context, cfg config.GenerationConfig, log *zap.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("generation API key is required (set COPYFORGE_API_KEY)")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiClient{client: client, cfg: cfg, log: log}, nil
}

// Generate runs one bounded generation call at the requested tier.
func (g *GeminiClient) Generate(ctx context.Context, req *Request) (*Result, error) {
	model := g.cfg.PrimaryModel
	if req.Tier == TierEscalated {
		model = g.cfg.EscalatedModel
	}

	prompt := buildPrompt(req, g.cfg.MaxEvidenceBytes)

	callCtx, cancel := context.WithTimeout(ctx, g.cfg.TimeoutDuration())
	defer cancel()

	resp, err := g.client.Models.GenerateContent(callCtx, model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
			ResponseMIMEType:  "application/json",
			Temperature:       genai.Ptr[float32](0.7),
		})
	if err != nil {
		if isRateLimit(err) {
			return nil, fmt.Errorf("%w: %v", ErrRateLimited, err)
		}
		return nil, fmt.Errorf("generate (model %s): %w", model, err)
	}

	text := resp.Text()
	if text == "" {
		return nil, fmt.Errorf("generate (model %s): empty response", model)
	}

	sections, err := parseDeck(text, req.Missing)
	if err != nil {
		return nil, err
	}

	usage := g.usageOf(resp, req.Tier)
	g.log.Debug("generation call complete",
		zap.String("item", req.ItemID),
		zap.String("model", model),
		zap.Int("input_tokens", usage.InputTokens),
		zap.Int("output_tokens", usage.OutputTokens),
		zap.Float64("cost", usage.Cost))

	return &Result{Sections: sections, TierUsed: req.Tier, Usage: usage}, nil
}

func (g *GeminiClient) usageOf(resp *genai.GenerateContentResponse, tier Tier) Usage {
	var in, out int
	if resp.UsageMetadata != nil {
		in = int(resp.UsageMetadata.PromptTokenCount)
		out = int(resp.UsageMetadata.CandidatesTokenCount)
	}

	inRate, outRate := g.cfg.PrimaryInputCostPer1K, g.cfg.PrimaryOutputCostPer1K
	if tier == TierEscalated {
		inRate, outRate = g.cfg.EscalatedInputCostPer1K, g.cfg.EscalatedOutputCostPer1K
	}
	return Usage{
		InputTokens:  in,
		OutputTokens: out,
		Cost:         float64(in)/1000*inRate + float64(out)/1000*outRate,
	}
}

func isRateLimit(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == 429
	}
	msg := err.Error()
	return strings.Contains(msg, "429") || strings.Contains(msg, "RESOURCE_EXHAUSTED")
}
