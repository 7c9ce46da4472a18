package bronto

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

const (
	CacheBackendMemory = "memory"
	CacheBackendMongo  = "mongo"
)

type Config struct {
	KsmConfigBase64       string
	KsmRecordUid          string
	ApiUrl                string
	Token                 string
	GoogleCredentialsFile string
	GoogleAdminSubject    string
	CacheBackend          string
	MongoUri              string
	MongoDatabase         string
	LogFile               string
	GroupMapping          bool
	HttpTimeout           time.Duration
}

// configKeys maps configuration keys to their environment variables.
var configKeys = map[string]string{
	"ksm_config_base64":       "KSM_CONFIG_BASE64",
	"ksm_record_uid":          "KSM_RECORD_UID",
	"api_url":                 "BRONTO_API_URL",
	"token":                   "BRONTO_TOKEN",
	"google_credentials_file": "GOOGLE_CREDENTIALS_FILE",
	"google_admin_subject":    "GOOGLE_ADMIN_SUBJECT",
	"cache":                   "BRONTO_CACHE",
	"mongo_uri":               "MONGO_URI",
	"mongo_database":          "MONGO_DATABASE",
	"log_file":                "BRONTO_LOG_FILE",
	"group_mapping":           "BRONTO_GROUP_MAPPING",
	"http_timeout":            "BRONTO_HTTP_TIMEOUT",
}

// LoadConfig reads the configuration from v, falling back to environment variables and defaults.
// Flags bound to v by the caller take precedence.
func LoadConfig(v *viper.Viper) (cfg *Config, err error) {
	if v == nil {
		v = viper.New()
	}
	v.SetDefault("api_url", DefaultApiUrl)
	v.SetDefault("cache", CacheBackendMemory)
	v.SetDefault("mongo_uri", "mongodb://localhost:27017")
	v.SetDefault("mongo_database", "ksm_bronto")
	v.SetDefault("group_mapping", true)
	v.SetDefault("http_timeout", 30*time.Second)
	for key, env := range configKeys {
		if err = v.BindEnv(key, env); err != nil {
			return
		}
	}

	cfg = &Config{
		KsmConfigBase64:       v.GetString("ksm_config_base64"),
		KsmRecordUid:          v.GetString("ksm_record_uid"),
		ApiUrl:                SecureApiUrl(v.GetString("api_url")),
		Token:                 v.GetString("token"),
		GoogleCredentialsFile: v.GetString("google_credentials_file"),
		GoogleAdminSubject:    v.GetString("google_admin_subject"),
		CacheBackend:          v.GetString("cache"),
		MongoUri:              v.GetString("mongo_uri"),
		MongoDatabase:         v.GetString("mongo_database"),
		LogFile:               v.GetString("log_file"),
		GroupMapping:          v.GetBool("group_mapping"),
		HttpTimeout:           v.GetDuration("http_timeout"),
	}

	switch cfg.CacheBackend {
	case CacheBackendMemory, CacheBackendMongo:
	default:
		err = fmt.Errorf("unsupported cache backend \"%s\": expected \"%s\" or \"%s\"",
			cfg.CacheBackend, CacheBackendMemory, CacheBackendMongo)
		cfg = nil
	}
	return
}
