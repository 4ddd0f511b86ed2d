package domain

// Capability names one of the four provider families a Project draws on.
type Capability string

const (
	CapabilityText    Capability = "text"
	CapabilityImage   Capability = "image"
	CapabilityVideo   Capability = "video"
	CapabilityCompile Capability = "compile"
)

// Credential is the shape returned by the credential store's lookup
// contract (spec.md §6). The core never caches it across phases.
type Credential struct {
	Provider string // tagged variant, e.g. "openai", "gemini", "ffmpeg", "none"
	Endpoint string
	Token    string
	Model    string
	Quality  string
	Extra    map[string]string
}

// ProviderBundle names the four-tuple of adapters selected for an owner.
type ProviderBundle struct {
	Text    Credential
	Image   Credential
	Video   Credential
	Compile Credential // Provider == "none" skips the compile phase
}

// CredentialLookup is the external collaborator contract the core consumes
// at each phase entry (spec.md §6). Implementations must never cache across
// calls; the core already enforces that discipline by calling per phase.
type CredentialLookup interface {
	Lookup(ownerID string, capability Capability) (*Credential, error)
}
