package config

// Validator interface for configurations that need validation.
type Validator interface {
	Validate() error
}

// EnvOverrider is implemented by configurations that accept environment overrides.
type EnvOverrider interface {
	LoadFromEnv(prefix string)
}
