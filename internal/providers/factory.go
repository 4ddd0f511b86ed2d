// Package providers selects a concrete adapter for each capability from a
// looked-up credential's tagged provider name. This is the one place that
// knows about every concrete vendor; the Director and Orchestrator only ever
// see the text.Completion/image.Synthesizer/video.Synthesizer/compile.Compiler
// interfaces.
package providers

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"clipforge/internal/domain"
	"clipforge/internal/providers/compile"
	"clipforge/internal/providers/image"
	"clipforge/internal/providers/text"
	"clipforge/internal/providers/video"
)

// FFmpegOptions configures the local compile adapter when selected.
type FFmpegOptions struct {
	WorkDir   string
	OutputDir string
	Binary    string
}

// TextCompletion builds the TextCompletion adapter tagged by cred.Provider.
func TextCompletion(cred domain.Credential, logger zerolog.Logger) (text.Completion, error) {
	switch cred.Provider {
	case "openai":
		if cred.Token == "" {
			return nil, &domain.ProviderError{Retryable: false, Message: "openai credential missing token", Capability: string(domain.CapabilityText)}
		}
		model := cred.Model
		if model == "" {
			model = "gpt-4o-mini"
		}
		endpoint := cred.Endpoint
		if endpoint == "" {
			endpoint = "https://api.openai.com/v1"
		}
		return text.NewOpenAICompletion(endpoint, cred.Token, model), nil
	case "static", "":
		return text.NewStaticCompletion(), nil
	default:
		return nil, fmt.Errorf("providers: unknown text provider %q", cred.Provider)
	}
}

// ImageSynthesis builds the ImageSynthesis adapter tagged by cred.Provider.
// "gemini" with an empty token still returns a working adapter: the Gemini
// adapter itself falls back to its deterministic synthetic renderer when no
// API key is present.
func ImageSynthesis(cred domain.Credential, logger zerolog.Logger) (image.Synthesizer, error) {
	switch cred.Provider {
	case "gemini", "static", "":
		model := cred.Model
		if model == "" {
			model = "gemini-2.0-flash"
		}
		endpoint := cred.Endpoint
		if endpoint == "" {
			endpoint = "https://generativelanguage.googleapis.com/v1beta"
		}
		return image.NewGeminiSynthesizer(cred.Token, endpoint, model, logger), nil
	default:
		return nil, fmt.Errorf("providers: unknown image provider %q", cred.Provider)
	}
}

// VideoSynthesis builds the VideoSynthesis adapter tagged by cred.Provider.
func VideoSynthesis(cred domain.Credential, logger zerolog.Logger) (video.Synthesizer, error) {
	switch cred.Provider {
	case "gemini", "static", "":
		model := cred.Model
		if model == "" {
			model = "veo-2.0-generate-001"
		}
		endpoint := cred.Endpoint
		if endpoint == "" {
			endpoint = "https://generativelanguage.googleapis.com/v1beta"
		}
		return video.NewGeminiSynthesizer(cred.Token, endpoint, model, logger), nil
	default:
		return nil, fmt.Errorf("providers: unknown video provider %q", cred.Provider)
	}
}

// Compilation builds the Compilation adapter tagged by cred.Provider, or nil
// when the tag is "none" — the caller must skip the compile phase entirely
// rather than invoking a no-op adapter.
func Compilation(cred domain.Credential, opts FFmpegOptions, logger zerolog.Logger) (compile.Compiler, error) {
	switch cred.Provider {
	case "none", "":
		return nil, nil
	case "ffmpeg":
		binary := opts.Binary
		if binary == "" {
			binary = "ffmpeg"
		}
		return compile.NewFFmpegCompiler(opts.WorkDir, opts.OutputDir, binary, logger), nil
	default:
		return nil, fmt.Errorf("providers: unknown compile provider %q", cred.Provider)
	}
}

// HTTPClientTimeout is the recommended per-call deadline named in spec.md §5
// for any adapter's outbound HTTP client.
const HTTPClientTimeout = 60 * time.Second
