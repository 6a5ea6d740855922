package config

// SetPath sets the engine config file path, used by tests.
func (e *Engine) SetPath(path string) {
	e.path = path
}
