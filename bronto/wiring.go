package bronto

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	ksm "github.com/keeper-security/secrets-manager-go/core"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

func loadKsmParameters(cfg *Config) (bp *BrontoEndpointParameters, gcp *GoogleEndpointParameters, err error) {
	var config = ksm.NewMemoryKeyValueStorage(cfg.KsmConfigBase64)
	var sm = ksm.NewSecretsManager(&ksm.ClientOptions{
		Config: config,
	})

	var filter []string
	if len(cfg.KsmRecordUid) > 0 {
		filter = append(filter, cfg.KsmRecordUid)
	}

	var records []*ksm.Record
	if records, err = sm.GetSecrets(filter); err != nil {
		return
	}
	var brontoRecord = FindBrontoRecord(records)
	if brontoRecord == nil {
		err = errors.New("Bronto record was not found. Make sure the record is valid and shared to KSM application")
		return
	}
	bp, gcp, err = LoadBrontoParametersFromRecord(brontoRecord)
	return
}

func newCacheStore(ctx context.Context, cfg *Config) (store ICacheStore, err error) {
	if cfg.CacheBackend != CacheBackendMongo {
		store = NewMemoryCacheStore(nil)
		return
	}
	var client *mongo.Client
	if client, err = mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoUri)); err != nil {
		return
	}
	var ms = NewMongoCacheStore(client.Database(cfg.MongoDatabase), nil)
	if err = ms.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return
	}
	store = ms
	return
}

// NewBrontoSyncFromConfig wires the Bronto session, the Google Workspace directory and the
// reference data cache. Settings come from Keeper Secrets Manager when KSM_CONFIG_BASE64
// is set and from the environment otherwise. ErrNoToken is returned when no API token exists.
func NewBrontoSyncFromConfig(ctx context.Context, cfg *Config, logger *zap.Logger) (result IBrontoSync, err error) {
	var bp *BrontoEndpointParameters
	var gcp *GoogleEndpointParameters
	if len(cfg.KsmConfigBase64) > 0 {
		if bp, gcp, err = loadKsmParameters(cfg); err != nil {
			return
		}
	} else {
		bp = &BrontoEndpointParameters{
			Url:          cfg.ApiUrl,
			Token:        cfg.Token,
			GroupMapping: true,
		}
		if len(bp.Token) == 0 {
			err = ErrNoToken
			return
		}
	}
	if len(bp.Url) == 0 {
		bp.Url = cfg.ApiUrl
	}

	if gcp == nil {
		if len(cfg.GoogleCredentialsFile) == 0 {
			err = errors.New("Google Workspace credentials are not configured")
			return
		}
		var credentials []byte
		if credentials, err = os.ReadFile(cfg.GoogleCredentialsFile); err != nil {
			err = fmt.Errorf("read Google Workspace credentials: %w", err)
			return
		}
		gcp = &GoogleEndpointParameters{
			AdminAccount: cfg.GoogleAdminSubject,
			Credentials:  credentials,
		}
	}

	var session *Session
	if session, err = NewSession(SecureApiUrl(bp.Url), bp.Token, &http.Client{Timeout: cfg.HttpTimeout}); err != nil {
		return
	}

	var store ICacheStore
	if store, err = newCacheStore(ctx, cfg); err != nil {
		return
	}

	var directory = NewGoogleDirectory(gcp.Credentials, gcp.AdminAccount)
	result = NewBrontoSync(session, directory, store, logger, bp.GroupMapping && cfg.GroupMapping)
	return
}
