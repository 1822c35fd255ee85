package engine

// DetectConfig holds parameters for backend detection.
type DetectConfig struct {
	OllamaBaseURL string
	ChatModel     string
}

// Detect probes available local inference backends and returns the best one.
// Ollama is the only supported local backend.
func Detect(cfg DetectConfig) (Engine, error) {
	return NewOllamaEngine(cfg.OllamaBaseURL).WithChatModel(cfg.ChatModel), nil
}
