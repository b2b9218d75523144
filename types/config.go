package types

// AppConfig represents the application configuration loaded from config file
type AppConfig struct {
	Port               int          `yaml:"port"`
	UsersRoot          string       `yaml:"usersRoot"`
	CacheRoot          string       `yaml:"cacheRoot"`
	FFmpegPath         string       `yaml:"ffmpegPath"`
	SharedWriteEnabled bool         `yaml:"sharedWriteEnabled"`
	Grants             []ShareGrant `yaml:"grants,omitempty"`
}

// Config holds runtime overrides from CLI flags
type Config struct {
	Log            string
	UseConfigPath  string
	UsePort        int
	UseUsersRoot   string
	UseCacheRoot   string
	UseFFmpegPath  string
	UseSharedWrite bool // if true, share grants also permit writes (global gate)
}
