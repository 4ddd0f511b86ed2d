package image

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	stdimage "image"
	"image/color"
	"image/draw"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"

	"clipforge/internal/domain"
)

// GeminiSynthesizer calls a Gemini-family generateContent endpoint for
// image generation, falling back to a deterministic seed-derived local
// render when no API key is configured or the remote call fails. The
// fallback keeps the Orchestrator and its tests runnable offline.
type GeminiSynthesizer struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     zerolog.Logger
}

func NewGeminiSynthesizer(apiKey, baseURL, model string, logger zerolog.Logger) *GeminiSynthesizer {
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if model == "" {
		model = "gemini-2.5-flash-image"
	}
	return &GeminiSynthesizer{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
	}
}

// perImageUSD holds flat per-image pricing for the Gemini image models this
// adapter targets. Unrecognized models fall back to the flash-image rate.
var perImageUSD = map[string]float64{
	"gemini-2.5-flash-image": 0.039,
	"gemini-2.0-flash":       0.039,
}

// EstimateCost returns 0 when no API key is configured: with no key,
// Synthesize always falls back to the local synthetic renderer, which has
// no external cost.
func (g *GeminiSynthesizer) EstimateCost() float64 {
	if g.apiKey == "" {
		return 0
	}
	if cost, ok := perImageUSD[g.model]; ok {
		return cost
	}
	return perImageUSD["gemini-2.5-flash-image"]
}

func (g *GeminiSynthesizer) Synthesize(ctx context.Context, prompt string, width, height int) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if g.apiKey == "" {
		return g.synthetic(prompt, width, height), nil
	}

	result, err := g.remote(ctx, prompt, width, height)
	if err != nil {
		g.logger.Warn().Err(err).Str("model", g.model).Msg("image: remote synthesis failed, falling back to local render")
		return g.synthetic(prompt, width, height), nil
	}
	return result, nil
}

func (g *GeminiSynthesizer) synthetic(prompt string, width, height int) *Result {
	seed := deterministicSeed(prompt, width, height)
	rendered := renderSeededFrame(width, height, seed)
	resized := imaging.Resize(rendered, width, height, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.PNG); err != nil {
		return &Result{Width: width, Height: height, Seed: seed}
	}
	return &Result{
		URL:    fmt.Sprintf("synthetic://image/%s.png", seed),
		Width:  width,
		Height: height,
		Seed:   seed,
		Data:   buf.Bytes(),
	}
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts,omitempty"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func (g *GeminiSynthesizer) remote(ctx context.Context, prompt string, width, height int) (*Result, error) {
	payload := geminiRequest{Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}}}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, url.PathEscape(g.model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	q := req.URL.Query()
	q.Set("key", g.apiKey)
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, &domain.ProviderError{Retryable: true, Message: err.Error(), Capability: string(domain.CapabilityImage)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		retryable := resp.StatusCode == 429 || resp.StatusCode >= 500
		return nil, &domain.ProviderError{Retryable: retryable, HTTPStatus: resp.StatusCode, Message: strings.TrimSpace(string(data)), Capability: string(domain.CapabilityImage)}
	}

	var out geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	for _, candidate := range out.Candidates {
		for _, part := range candidate.Content.Parts {
			if part.InlineData == nil || part.InlineData.Data == "" {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil {
				continue
			}
			decoded, err := imaging.Decode(bytes.NewReader(data))
			if err != nil {
				continue
			}
			resized := imaging.Resize(decoded, width, height, imaging.Lanczos)
			var buf bytes.Buffer
			if err := imaging.Encode(&buf, resized, imaging.PNG); err != nil {
				continue
			}
			return &Result{Width: width, Height: height, Seed: deterministicSeed(part.InlineData.Data), Data: buf.Bytes()}, nil
		}
	}
	return nil, fmt.Errorf("no image content returned")
}

func renderSeededFrame(width, height int, seed string) stdimage.Image {
	if width <= 0 {
		width = 1024
	}
	if height <= 0 {
		height = 1024
	}
	img := stdimage.NewRGBA(stdimage.Rect(0, 0, width, height))
	base := colorFromSeed(seed, 0)
	accent := colorFromSeed(seed, 1)
	draw.Draw(img, img.Bounds(), &stdimage.Uniform{C: base}, stdimage.Point{}, draw.Src)

	band := height / 10
	if band < 8 {
		band = 8
	}
	for y := 0; y < height; y += band * 2 {
		stripe := stdimage.Rect(0, y, width, min(height, y+band))
		draw.Draw(img, stripe, &stdimage.Uniform{C: accent}, stdimage.Point{}, draw.Over)
	}
	return img
}

func colorFromSeed(seed string, shift int) color.RGBA {
	if seed == "" {
		seed = "0000000000000000"
	}
	doubled := seed + seed
	start := (shift * 6) % len(seed)
	segment := doubled[start : start+6]
	var r, g, b uint8
	fmt.Sscanf(segment[0:2], "%02x", &r)
	fmt.Sscanf(segment[2:4], "%02x", &g)
	fmt.Sscanf(segment[4:6], "%02x", &b)
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

func deterministicSeed(parts ...any) string {
	hasher := sha256.New()
	for _, part := range parts {
		hasher.Write([]byte(fmt.Sprintf("%v", part)))
		hasher.Write([]byte{'|'})
	}
	return hex.EncodeToString(hasher.Sum(nil))[:16]
}

var _ Synthesizer = (*GeminiSynthesizer)(nil)
