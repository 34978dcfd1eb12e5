package meta

// ModelTier represents the capability/cost tier of a model.
type ModelTier int

const (
	// TierRoot is the model used at recursion depth 0.
	TierRoot ModelTier = iota
	// TierSub is the cheaper model used at every depth beyond 0.
	TierSub
)

// ModelSpec describes a model the transport can call.
type ModelSpec struct {
	ID          string
	Tier        ModelTier
	InputCost   float64 // per million tokens
	OutputCost  float64 // per million tokens
	ContextSize int
}

// DefaultModels is the catalog consulted when a Config leaves Root/Sub
// blank, trimmed from the teacher's OpenRouter catalog down to one
// representative model per tier this runtime actually distinguishes.
func DefaultModels() []ModelSpec {
	return []ModelSpec{
		{ID: "anthropic/claude-sonnet-4.5", Tier: TierRoot, InputCost: 3.00, OutputCost: 15.00, ContextSize: 200000},
		{ID: "anthropic/claude-haiku-4.5", Tier: TierSub, InputCost: 1.00, OutputCost: 5.00, ContextSize: 200000},
	}
}

// Config names the two concrete models the agent loop selects between.
// Root and Sub are literal model identifiers (spec §6's `model` /
// `recursive_model` configuration options); when empty, Selector falls
// back to the first DefaultModels() entry for that tier.
type Config struct {
	Root string
	Sub  string
}

// Selector resolves a recursion depth to the model identifier that
// should serve it.
type Selector struct {
	cfg Config
}

// NewSelector builds a Selector, filling any unset model from the
// default catalog.
func NewSelector(cfg Config) *Selector {
	if cfg.Root == "" || cfg.Sub == "" {
		for _, m := range DefaultModels() {
			if cfg.Root == "" && m.Tier == TierRoot {
				cfg.Root = m.ID
			}
			if cfg.Sub == "" && m.Tier == TierSub {
				cfg.Sub = m.ID
			}
		}
	}
	return &Selector{cfg: cfg}
}

// SelectModel returns the model identifier and tier for the given
// recursion depth: depth 0 is TierRoot, every other depth is TierSub.
// This is the entire cost-discipline contract spec §4.5 names — a task
// that ever calls recursive_llm must produce at least one observable
// call against the sub model.
func (s *Selector) SelectModel(depth int) (id string, tier ModelTier) {
	if depth == 0 {
		return s.cfg.Root, TierRoot
	}
	return s.cfg.Sub, TierSub
}
