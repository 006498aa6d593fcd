package config

// Config is the root configuration structure for the keyinfo processor.
type Config struct {
	// KeysManager selects and configures how <KeyName> lookups and
	// EncryptedKey/DerivedKey/AgreementMethod material is resolved.
	KeysManager KeysManagerConfig `koanf:"keys_manager"`

	// Retrieval configures RetrievalMethod/KeyInfoReference dereferencing.
	Retrieval RetrievalConfig `koanf:"retrieval"`

	// Limits bounds recursive processing (spec.md §6/§7).
	Limits LimitsConfig `koanf:"limits"`

	// Flags control strictness switches, named after the keyinfo.Flags
	// bits they set.
	Flags FlagsConfig `koanf:"flags"`

	// Base64LineSize controls wrapped base64 text node writing (0 disables
	// wrapping).
	Base64LineSize int `koanf:"base64_line_size"`

	// CertsVerificationDepth bounds X.509 chain validation depth handed to
	// collaborators that validate certificate material.
	CertsVerificationDepth int `koanf:"certs_verification_depth"`

	// Observability configuration (logging).
	Observability ObservabilityConfig `koanf:"observability"`
}

// KeysManagerConfig selects a keysmanager.Manager implementation.
type KeysManagerConfig struct {
	// Type is one of "memory" or "aws_kms".
	Type string `koanf:"type" usage:"keys manager backend: memory or aws_kms"`

	AWSKMS AWSKMSConfig `koanf:"aws_kms"`
}

// AWSKMSConfig configures keysmanager.AWSKMSManager.
type AWSKMSConfig struct {
	Region      string `koanf:"region" usage:"AWS region for the KMS client"`
	AliasPrefix string `koanf:"alias_prefix" usage:"KMS alias prefix prepended to a resolved KeyName, e.g. alias/keyinfo/"`
}

// RetrievalConfig configures the xform.CachingFetcher used by
// RetrievalMethod and KeyInfoReference dereferencing.
type RetrievalConfig struct {
	// CacheBytes is the groupcache group's size limit in bytes.
	CacheBytes int64 `koanf:"cache_bytes" usage:"byte size of the retrieval dereference cache"`

	// GroupName distinguishes this process's groupcache group; must be
	// unique per process since groupcache panics on duplicate names.
	GroupName string `koanf:"group_name" usage:"groupcache group name for the retrieval fetcher"`
}

// LimitsConfig bounds recursive KeyInfo processing.
type LimitsConfig struct {
	MaxRetrievalMethodLevel   int `koanf:"max_retrieval_method_level" usage:"recursion cap for RetrievalMethod dereferencing"`
	MaxKeyInfoReferenceLevel  int `koanf:"max_key_info_reference_level" usage:"recursion cap for KeyInfoReference dereferencing"`
	MaxEncryptedKeyLevel      int `koanf:"max_encrypted_key_level" usage:"recursion cap for nested EncryptedKey/DerivedKey/AgreementMethod processing"`
}

// FlagsConfig mirrors keyinfo.Flags as named booleans for configuration.
type FlagsConfig struct {
	DontStopOnKeyFound             bool `koanf:"dont_stop_on_key_found"`
	StopOnUnknownChild             bool `koanf:"stop_on_unknown_child"`
	KeyValueStopOnUnknownChild     bool `koanf:"key_value_stop_on_unknown_child"`
	RetrMethodStopOnUnknownHref    bool `koanf:"retr_method_stop_on_unknown_href"`
	RetrMethodStopOnMismatchHref   bool `koanf:"retr_method_stop_on_mismatch_href"`
	EncKeyDontStopOnFailedDecrypt  bool `koanf:"enc_key_dont_stop_on_failed_decrypt"`
}

// ObservabilityConfig controls structured logging.
type ObservabilityConfig struct {
	LogLevel  string `koanf:"log_level" usage:"logrus level: trace, debug, info, warn, error"`
	LogFormat string `koanf:"log_format" usage:"logrus formatter: text or json"`
}
