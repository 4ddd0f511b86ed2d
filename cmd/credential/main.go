// Command credential sets the per-owner, per-capability credential row the
// core reads at each phase entry. It replaces two narrower CLIs the starting
// point carried (one that only wrote a Gemini/OpenAI text key, one that only
// managed a UMKM plan/quota row no longer part of this domain) with one tool
// that can set any of the four capabilities.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"clipforge/internal/domain"
	"clipforge/internal/infra"
	"clipforge/internal/infra/credentials"
)

func main() {
	var (
		ownerFlag      string
		capabilityFlag string
		providerFlag   string
		tokenFlag      string
		endpointFlag   string
		modelFlag      string
		qualityFlag    string
	)
	flag.StringVar(&ownerFlag, "owner", "", "owner id the credential applies to (required)")
	flag.StringVar(&capabilityFlag, "capability", "", "text, image, video, or compile (required)")
	flag.StringVar(&providerFlag, "provider", "", "tagged provider variant, e.g. openai, gemini, ffmpeg, none (required)")
	flag.StringVar(&tokenFlag, "token", "", "API token (falls back to environment per capability when empty)")
	flag.StringVar(&endpointFlag, "endpoint", "", "override endpoint URL")
	flag.StringVar(&modelFlag, "model", "", "override model name")
	flag.StringVar(&qualityFlag, "quality", "", "quality tier, when the provider supports one")
	flag.Parse()

	owner := strings.TrimSpace(ownerFlag)
	if owner == "" {
		exitWithError(fmt.Errorf("-owner is required"))
	}

	capability := domain.Capability(strings.TrimSpace(strings.ToLower(capabilityFlag)))
	switch capability {
	case domain.CapabilityText, domain.CapabilityImage, domain.CapabilityVideo, domain.CapabilityCompile:
	default:
		exitWithError(fmt.Errorf("unsupported capability %q", capabilityFlag))
	}

	provider := strings.TrimSpace(providerFlag)
	if provider == "" {
		exitWithError(fmt.Errorf("-provider is required"))
	}
	if !validProvider(capability, provider) {
		exitWithError(fmt.Errorf("unsupported provider %q for capability %q", provider, capability))
	}

	token := strings.TrimSpace(tokenFlag)
	if token == "" {
		token = strings.TrimSpace(os.Getenv(fallbackTokenEnv(capability, provider)))
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		exitWithError(fmt.Errorf("DATABASE_URL is required"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		exitWithError(fmt.Errorf("connect to database: %w", err))
	}
	defer pool.Close()

	logger := infra.NewLogger("cli")
	store := credentials.NewStore(infra.NewSQLRunner(pool, logger))

	err = store.Set(ctx, owner, capability, domain.Credential{
		Provider: provider,
		Endpoint: endpointFlag,
		Token:    token,
		Model:    modelFlag,
		Quality:  qualityFlag,
	})
	if err != nil {
		exitWithError(fmt.Errorf("set credential: %w", err))
	}

	out, _ := json.Marshal(map[string]string{"owner": owner, "capability": string(capability), "provider": provider})
	fmt.Println(string(out))
}

// validProvider checks provider against the same closed per-capability sets
// internal/providers/factory.go switches on, so an unrecognized tag is
// rejected here, at credential-set time, rather than surfacing as a runtime
// error the first time a job reaches that capability's phase.
func validProvider(capability domain.Capability, provider string) bool {
	switch capability {
	case domain.CapabilityText:
		switch provider {
		case "openai", "static":
			return true
		}
	case domain.CapabilityImage, domain.CapabilityVideo:
		switch provider {
		case "gemini", "static":
			return true
		}
	case domain.CapabilityCompile:
		switch provider {
		case "none", "ffmpeg":
			return true
		}
	}
	return false
}

// fallbackTokenEnv names the environment variable a credential's token is
// read from when -token is omitted, matching the vendor SDKs' own
// conventions so a key already exported for local testing just works.
func fallbackTokenEnv(capability domain.Capability, provider string) string {
	switch provider {
	case "openai":
		return "OPENAI_API_KEY"
	case "gemini":
		return "GEMINI_API_KEY"
	default:
		return strings.ToUpper(string(capability)) + "_API_KEY"
	}
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
