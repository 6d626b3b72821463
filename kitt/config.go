package kitt

// TransportType selects which host primitive frames use to reach native code
type TransportType string

const (
	TransportMessageHandler TransportType = "messageHandler"
	TransportEntryPoint     TransportType = "entryPoint"
)

// Config for kittcore
type Config struct {
	DataPath        string        `toml:"data_path"`
	ExtensionID     string        `toml:"extension_id"`
	ExtensionScript string        `toml:"extension_script"`
	URL             string        `toml:"url"`
	Transport       TransportType `toml:"transport"`
	ListenerTimeout int           `toml:"listener_timeout"` // milliseconds to wait on a blocking listener
	CacheTimeout    int           `toml:"cache_timeout"`    // milliseconds a cache read waits for a write
	ChromePath      string        `toml:"chrome_path"`
	Headless        bool          `toml:"headless"`
	LogLevel        string        `toml:"log_level"`
	PrettyLog       bool          `toml:"pretty_log"`
}

// DefaultConfig values used when no config file is given
func DefaultConfig() *Config {
	return &Config{
		DataPath:        "kittdata",
		ExtensionID:     "kitt-extension",
		Transport:       TransportMessageHandler,
		ListenerTimeout: 5000,
		CacheTimeout:    2000,
		Headless:        true,
		LogLevel:        "info",
	}
}
