package engine

// Config holds the control loop knobs.
type Config struct {
	// ReflectionThreshold is k: reflection runs whenever the failures since the
	// last reflection reach a positive multiple of k.
	ReflectionThreshold int `yaml:"reflection_threshold"`
	// RecursionLimit caps node executions per run.
	RecursionLimit int `yaml:"recursion_limit"`
	// MaxProceedRetries bounds consecutive proceed turns without a tool call.
	// Zero leaves proceed bounded only by RecursionLimit.
	MaxProceedRetries int `yaml:"max_proceed_retries"`

	Stream          bool        `yaml:"stream"`
	Temperature     float32     `yaml:"temperature"`
	MaxOutputTokens int         `yaml:"max_output_tokens"`
	Retry           RetryPolicy `yaml:"retry"`

	// SystemPrompt replaces DefaultSystemPrompt when set.
	SystemPrompt string `yaml:"system_prompt"`
}

const (
	DefaultReflectionThreshold = 3
	DefaultRecursionLimit      = 100
)

// DefaultConfig returns the defaults used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		ReflectionThreshold: DefaultReflectionThreshold,
		RecursionLimit:      DefaultRecursionLimit,
		Stream:              true,
		MaxOutputTokens:     4096,
		Retry:               DefaultRetryPolicy(),
	}
}

// withDefaults fills zero values so a partially populated Config is usable.
func (c Config) withDefaults() Config {
	if c.ReflectionThreshold <= 0 {
		c.ReflectionThreshold = DefaultReflectionThreshold
	}
	if c.RecursionLimit <= 0 {
		c.RecursionLimit = DefaultRecursionLimit
	}
	if c.SystemPrompt == "" {
		c.SystemPrompt = DefaultSystemPrompt
	}
	if c.Retry.Multiplier == 0 {
		c.Retry.Multiplier = 2.0
	}
	return c
}
