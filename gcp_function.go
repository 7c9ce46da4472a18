package ksm_bronto

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/cloudevents/sdk-go/v2/event"
	"github.com/google/uuid"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"keepersecurity.com/ksm-bronto/bronto"
)

func init() {
	functions.HTTP("BrontoSyncHttp", brontoSyncHttp)
	functions.CloudEvent("BrontoSyncEvent", brontoSyncEvent)
}

const noTokenNotice = "Bronto synchronization is halted: no Bronto API token is configured. " +
	"Share a Bronto login record to the KSM application or set BRONTO_TOKEN."

var (
	initLock        sync.Mutex
	brontoSync      bronto.IBrontoSync
	logger          = zap.NewNop()
	loggerReady     bool
	buildBrontoSync = newBrontoSyncFromEnvironment
)

func newBrontoSyncFromEnvironment(ctx context.Context) (bs bronto.IBrontoSync, err error) {
	var cfg *bronto.Config
	if cfg, err = bronto.LoadConfig(viper.New()); err != nil {
		return
	}
	if !loggerReady {
		var zl *zap.Logger
		if zl, err = bronto.NewLogger(cfg.LogFile); err != nil {
			return
		}
		logger = zl
		loggerReady = true
	}
	bs, err = bronto.NewBrontoSyncFromConfig(ctx, cfg, logger)
	return
}

// getBrontoSync builds the synchronization on first use and keeps it for the lifetime
// of the function instance. A failed build is retried by the next invocation.
func getBrontoSync(ctx context.Context) (bs bronto.IBrontoSync, err error) {
	initLock.Lock()
	defer initLock.Unlock()
	if brontoSync != nil {
		bs = brontoSync
		return
	}
	if bs, err = buildBrontoSync(ctx); err != nil {
		if errors.Is(err, bronto.ErrNoToken) {
			logger.Error("Plugin halted. No token provided")
		} else {
			log.Println(err)
			logger.Error("Bronto synchronization initialization failed", zap.Error(err))
		}
		bs = nil
		return
	}
	brontoSync = bs
	return
}

func runUserEvent(ctx context.Context, ue *bronto.UserEvent) (result *bronto.SyncResult, err error) {
	var bs bronto.IBrontoSync
	if bs, err = getBrontoSync(ctx); err != nil {
		return
	}
	result, err = bronto.DispatchUserEvent(ctx, bs, ue)
	return
}

func printResult(w io.Writer, result *bronto.SyncResult) {
	if result != nil {
		var status = "Success"
		if !result.Success {
			status = "Failure"
		}
		_, _ = fmt.Fprintf(w, "%s %s:\n", result.Operation, status)
		_, _ = fmt.Fprintf(w, "\tID: %s\n", result.UserId)
		if len(result.Email) > 0 {
			_, _ = fmt.Fprintf(w, "\tEmail: %s\n", result.Email)
		}
		_, _ = fmt.Fprintf(w, "\tMessage: %s\n", result.Message)
	}
}

// brontoSyncHttp accepts a JSON encoded bronto.UserEvent
func brontoSyncHttp(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var ue bronto.UserEvent
	if err := json.NewDecoder(r.Body).Decode(&ue); err != nil {
		http.Error(w, fmt.Sprintf("invalid user event: %v", err), http.StatusBadRequest)
		return
	}
	var requestId = uuid.NewString()
	var result, err = runUserEvent(r.Context(), &ue)
	if err != nil {
		if errors.Is(err, bronto.ErrNoToken) {
			http.Error(w, noTokenNotice, http.StatusServiceUnavailable)
			return
		}
		logger.Error("Bronto synchronization failed", zap.String("request_id", requestId),
			zap.String("type", ue.Type), zap.String("id", ue.UserId), zap.Error(err))
		http.Error(w, fmt.Sprintf("Server Error: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("X-Request-Id", requestId)
	printResult(w, result)
}

// brontoSyncEvent consumes a directory lifecycle CloudEvent.
func brontoSyncEvent(ctx context.Context, e event.Event) (err error) {
	var ue *bronto.UserEvent
	if ue, err = bronto.UserEventFromCloudEvent(e); err != nil {
		return
	}
	var result *bronto.SyncResult
	if result, err = runUserEvent(ctx, ue); err != nil {
		if errors.Is(err, bronto.ErrNoToken) {
			// redelivery cannot help until a token is configured
			err = nil
			return
		}
		logger.Error("Bronto synchronization failed", zap.String("event_id", e.ID()),
			zap.String("type", ue.Type), zap.String("id", ue.UserId), zap.Error(err))
		return
	}
	if result != nil {
		logger.Debug("event handled", zap.String("event_id", e.ID()), zap.String("message", result.Message))
	}
	return
}
