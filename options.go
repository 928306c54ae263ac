package shaderkit

// Option configures a Context during creation.
//
// Example:
//
//	// Synchronous builds, useful for tools and tests
//	ctx, err := shaderkit.NewContext(dev, shaderkit.WithMultithreading(false))
//
//	// Defer pipeline creation to Flush
//	ctx, err := shaderkit.NewContext(dev, shaderkit.WithInlinePipelineCreation(false))
type Option func(*options)

// options holds optional configuration for Context creation.
type options struct {
	multithreading  bool
	inlinePipelines bool
	assertions      bool
	onBuildFailure  func(*BuildError)
}

// defaultOptions returns the default context options.
func defaultOptions() options {
	return options{
		multithreading:  true,
		inlinePipelines: true,
		assertions:      true,
	}
}

// WithMultithreading enables the init and bake worker goroutines and eager
// materialization of registered factories. Disabled, every Initialize
// finishes its build before returning. Default true.
func WithMultithreading(enabled bool) Option {
	return func(o *options) {
		o.multithreading = enabled
	}
}

// WithInlinePipelineCreation selects whether pipelines are created inside
// the init job (true, default) or deferred to finalization during Flush.
func WithInlinePipelineCreation(enabled bool) Option {
	return func(o *options) {
		o.inlinePipelines = enabled
	}
}

// WithAssertions makes ordering violations panic (true, default) instead of
// only being logged.
func WithAssertions(enabled bool) Option {
	return func(o *options) {
		o.assertions = enabled
	}
}

// WithBuildFailureHandler installs a diagnostics callback for failed
// builds. It runs on whichever goroutine ran the build.
func WithBuildFailureHandler(fn func(*BuildError)) Option {
	return func(o *options) {
		o.onBuildFailure = fn
	}
}
