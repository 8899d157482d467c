package config

// CLIConfig holds defaults for the notesctl command.
type CLIConfig struct {
	APIBaseURL string
	Username   string
}

// LoadCLIConfig reads notesctl defaults from the environment.
func LoadCLIConfig() CLIConfig {
	return CLIConfig{
		APIBaseURL: GetString("NOTES_API", "http://localhost:8000"),
		Username:   GetString("NOTES_USER", ""),
	}
}
