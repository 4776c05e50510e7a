// Gateway: the security gateway's request-facing process. Wires
// configuration, observability, the policy engine, sandbox runner, and
// task store into a request service, then exposes it over the length-
// prefixed transport listener and a separate metrics/health endpoint.
package main

import (
	"context"
	"crypto/ed25519"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Gao-OS/strata-gateway/internal/auth"
	"github.com/Gao-OS/strata-gateway/internal/config"
	"github.com/Gao-OS/strata-gateway/internal/obs"
	"github.com/Gao-OS/strata-gateway/internal/policy"
	"github.com/Gao-OS/strata-gateway/internal/sandbox"
	"github.com/Gao-OS/strata-gateway/internal/service"
	"github.com/Gao-OS/strata-gateway/internal/task"
	"github.com/Gao-OS/strata-gateway/internal/taxonomy"
	"github.com/Gao-OS/strata-gateway/internal/transport"
)

const version = "0.1.0"

func main() {
	log := obs.NewLogger()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	log.SetLevel(logLevelFromFilter(cfg.LogFilter, log.GetLevel()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracingCfg := obs.TracingConfigFromEnv()
	shutdownTracing, err := obs.InitTracing(ctx, tracingCfg)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize tracing")
	}
	defer shutdownTracing(context.Background())

	pubKey := loadOrMintKeys(log)

	metrics := obs.NewMetrics()
	counters := taxonomy.NewCounters()
	policyEngine := policy.NewEngine(nil)
	runner := sandbox.NewRunner(obs.WithComponent(log, "sandbox"))
	tasks := task.NewStore()

	svc := service.New(policyEngine, runner, tasks, counters, metrics, obs.WithComponent(log, "service"), version)

	revocation := auth.NewRevocationList()
	authenticator := service.NewTokenAuthenticator(pubKey, revocation)
	go pruneRevocations(ctx, revocation, obs.WithComponent(log, "revocation"))

	srv := transport.NewServer(cfg.BindAddress, obs.WithComponent(log, "transport")).
		WithAuthenticator(authenticator).
		WithMetrics(metrics)

	registerHandlers(srv, svc)

	if err := srv.Start(); err != nil {
		log.WithError(err).Fatal("failed to start transport listener")
	}
	defer srv.Stop()

	go func() {
		if err := metrics.Serve(ctx, cfg.MetricsBindAddress, obs.WithComponent(log, "metrics")); err != nil {
			log.WithError(err).Error("metrics server exited with error")
		}
	}()

	log.WithFields(logrus.Fields{
		"bind_address":    cfg.BindAddress,
		"metrics_address": cfg.MetricsBindAddress,
		"version":         version,
	}).Info("gateway ready")

	<-ctx.Done()
	log.Info("shutting down")
}

// loadOrMintKeys loads the gateway's ed25519 public key from the path
// in MCP_IDENTITY_PUBLIC_KEY (default: mcp-gateway-identity.pub in the
// temp dir), generating a fresh keypair and writing its public key to
// that path when no key can be loaded from it. A standalone identity process isn't
// part of this single-binary gateway, so key minting happens inline at
// startup instead of via a separate service.
func loadOrMintKeys(log logrus.FieldLogger) ed25519.PublicKey {
	path := os.Getenv("MCP_IDENTITY_PUBLIC_KEY")
	if path == "" {
		path = filepath.Join(os.TempDir(), "mcp-gateway-identity.pub")
	}

	if pub, err := auth.LoadPublicKey(path); err == nil {
		log.WithFields(logrus.Fields{"path": path, "fingerprint": auth.Fingerprint(pub)}).Info("loaded identity public key")
		return pub
	}

	kp, err := auth.GenerateKeyPair()
	if err != nil {
		log.WithError(err).Fatal("failed to generate identity keypair")
	}
	if err := kp.WritePublicKey(path); err != nil {
		log.WithError(err).Fatal("failed to persist identity public key")
	}
	log.WithFields(logrus.Fields{"path": path, "fingerprint": auth.Fingerprint(kp.Public)}).
		Warn("generated a fresh identity keypair; tokens signed by a previous instance will no longer verify")
	return kp.Public
}

// pruneRevocations periodically drops revocation entries whose
// capability has already expired on its own, keeping the in-memory set
// bounded over a long-running gateway process.
func pruneRevocations(ctx context.Context, revocation *auth.RevocationList, log logrus.FieldLogger) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if removed := revocation.Prune(time.Now()); removed > 0 {
				log.WithField("removed", removed).Debug("pruned expired revocation entries")
			}
		case <-ctx.Done():
			return
		}
	}
}

func logLevelFromFilter(filter string, fallback logrus.Level) logrus.Level {
	lvl, err := logrus.ParseLevel(filter)
	if err != nil {
		return fallback
	}
	return lvl
}

// registerHandlers binds every wire method to its service call,
// translating between the transport envelope and internal/service's
// request/response shapes and converting taxonomy errors to the wire
// error payload.
func registerHandlers(srv *transport.Server, svc *service.Service) {
	srv.Handle(transport.MethodHealth, func(req *transport.Request, identity any) transport.Response {
		includeStats, _ := req.Params["include_stats"].(bool)
		return transport.SuccessResponse(req.ReqID, svc.Health(includeStats))
	})

	srv.Handle(transport.MethodExecuteCommand, func(req *transport.Request, identity any) transport.Response {
		taskID, err := svc.ExecuteCommand(context.Background(), decodeExecuteCommand(req.Params), service.AsIdentity(identity))
		if err != nil {
			return errorResponse(req.ReqID, err)
		}
		return transport.SuccessResponse(req.ReqID, map[string]string{"task_id": taskID})
	})

	srv.Handle(transport.MethodGetTaskStatus, func(req *transport.Request, identity any) transport.Response {
		taskID, _ := req.Params["task_id"].(string)
		snap, err := svc.GetTaskStatus(taskID)
		if err != nil {
			return errorResponse(req.ReqID, err)
		}
		return transport.SuccessResponse(req.ReqID, snap)
	})

	srv.HandleStream(transport.MethodStreamTaskOutput, func(req *transport.Request, identity any, send func(result any, final bool) error) {
		taskID, _ := req.Params["task_id"].(string)
		err := svc.StreamTaskOutput(context.Background(), taskID, func(chunk task.OutputChunk) error {
			return send(chunk, false)
		})
		if err != nil {
			_ = send(errorResponse(req.ReqID, err).Error, true)
			return
		}
		_ = send(map[string]bool{"done": true}, true)
	})

	srv.Handle(transport.MethodCancelTask, func(req *transport.Request, identity any) transport.Response {
		taskID, _ := req.Params["task_id"].(string)
		snap, err := svc.CancelTask(taskID)
		if err != nil {
			return errorResponse(req.ReqID, err)
		}
		return transport.SuccessResponse(req.ReqID, snap)
	})

	srv.Handle(transport.MethodReadFile, func(req *transport.Request, identity any) transport.Response {
		path, _ := req.Params["path"].(string)
		result, err := svc.ReadFile(path, service.AsIdentity(identity))
		if err != nil {
			return errorResponse(req.ReqID, err)
		}
		return transport.SuccessResponse(req.ReqID, map[string]string{"data": string(result.Data)})
	})

	srv.Handle(transport.MethodWriteFile, func(req *transport.Request, identity any) transport.Response {
		path, _ := req.Params["path"].(string)
		data, _ := req.Params["data"].(string)
		createDirs, _ := req.Params["create_dirs"].(bool)
		err := svc.WriteFile(path, []byte(data), 0, createDirs, service.AsIdentity(identity))
		if err != nil {
			return errorResponse(req.ReqID, err)
		}
		return transport.SuccessResponse(req.ReqID, map[string]bool{"ok": true})
	})

	srv.Handle(transport.MethodDeleteFile, func(req *transport.Request, identity any) transport.Response {
		path, _ := req.Params["path"].(string)
		recursive, _ := req.Params["recursive"].(bool)
		err := svc.DeleteFile(path, recursive, service.AsIdentity(identity))
		if err != nil {
			return errorResponse(req.ReqID, err)
		}
		return transport.SuccessResponse(req.ReqID, map[string]bool{"ok": true})
	})
}

func decodeExecuteCommand(params map[string]any) service.ExecuteCommandRequest {
	command, _ := params["command"].(string)
	cwd, _ := params["cwd"].(string)

	var args []string
	if raw, ok := params["args"].([]any); ok {
		for _, a := range raw {
			if s, ok := a.(string); ok {
				args = append(args, s)
			}
		}
	}

	env := map[string]string{}
	if raw, ok := params["env"].(map[string]any); ok {
		for k, v := range raw {
			if s, ok := v.(string); ok {
				env[k] = s
			}
		}
	}

	var timeoutSecs uint32
	switch v := params["timeout_secs"].(type) {
	case float64:
		timeoutSecs = uint32(v)
	case int:
		timeoutSecs = uint32(v)
	}

	return service.ExecuteCommandRequest{
		Command:     command,
		Args:        args,
		Env:         env,
		Cwd:         cwd,
		TimeoutSecs: timeoutSecs,
	}
}

func errorResponse(reqID string, err error) transport.Response {
	te, ok := err.(*taxonomy.Error)
	if !ok {
		te = taxonomy.New(taxonomy.Internal, "%v", err)
	}
	resp := te.ToResponse()
	return transport.ErrorResponse(reqID, resp.Code, resp.Message, resp.Details)
}
