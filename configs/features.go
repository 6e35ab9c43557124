package configs

// Features mirrors features.yaml: toggles for optional, best-effort
// components that the core pipeline never depends on for correctness.
type Features struct {
	MetadataRegistryEnabled bool `yaml:"metadata_registry_enabled"`
	NoticePollerEnabled     bool `yaml:"notice_poller_enabled"`
	InteractiveBotEnabled   bool `yaml:"interactive_bot_enabled"`
}

func defaultFeatures() Features {
	return Features{
		MetadataRegistryEnabled: false,
		NoticePollerEnabled:     true,
		InteractiveBotEnabled:   false,
	}
}
