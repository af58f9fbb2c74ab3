package app

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/datasovereign/platform-core/internal/apperr"
	"github.com/datasovereign/platform-core/internal/config"
	"github.com/datasovereign/platform-core/internal/cryptoutil"
	"github.com/datasovereign/platform-core/internal/httpserver"
	"github.com/datasovereign/platform-core/internal/platform"
	"github.com/datasovereign/platform-core/internal/telemetry"
	"github.com/datasovereign/platform-core/pkg/audit"
	"github.com/datasovereign/platform-core/pkg/capsule"
	"github.com/datasovereign/platform-core/pkg/consent"
	"github.com/datasovereign/platform-core/pkg/eventbus"
	"github.com/datasovereign/platform-core/pkg/policyreview"
	"github.com/datasovereign/platform-core/pkg/privacy"
	"github.com/datasovereign/platform-core/pkg/queryplan"
	"github.com/datasovereign/platform-core/pkg/request"
	"github.com/datasovereign/platform-core/pkg/screening"
	"github.com/datasovereign/platform-core/pkg/settlement"
)

// Engines bundles the constructed subsystem engines so runAPI/runWorker
// and any future ops surface can share one wiring pass.
type Engines struct {
	Requests     *request.Store
	Screening    *screening.Engine
	PolicyReview *policyreview.Engine
	Consent      *consent.Engine
	QueryPlan    *queryplan.Engine
	Capsule      *capsule.Engine
	Privacy      *privacy.Governor
	Settlement   *settlement.Engine
	Audit        *audit.Ledger
	Bus          *eventbus.Bus
	Worker       *eventbus.Worker
}

// Run is the main application entry point. It reads config, connects to
// infrastructure, wires the six subsystems, and starts the requested
// mode (api or worker).
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting sovereignd", "mode", cfg.Mode, "listen", cfg.ListenAddr())

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.OTLPEndpoint, "sovereignd", "dev")
	if err != nil {
		return fmt.Errorf("initializing tracer: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Error("shutting down tracer", "error", err)
		}
	}()

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	metricsReg := telemetry.NewMetricsRegistry(telemetry.All()...)

	engines, err := wire(cfg, db, rdb, logger)
	if err != nil {
		return fmt.Errorf("wiring subsystems: %w", err)
	}

	switch cfg.Mode {
	case "api":
		return runAPI(ctx, cfg, logger, db, rdb, metricsReg)
	case "worker":
		return runWorker(ctx, cfg, logger, engines)
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

// wire constructs every store and engine from a single connection pool,
// the shape each engine's NewEngine/NewStore constructor expects.
func wire(cfg *config.Config, db *pgxpool.Pool, rdb *redis.Client, logger *slog.Logger) (*Engines, error) {
	requestStore := request.NewStore(db)
	screeningStore := screening.NewStore(db)
	policyStore := policyreview.NewStore(db)
	consentStore := consent.NewStore(db)
	queryPlanStore := queryplan.NewStore(db)
	capsuleStore := capsule.NewStore(db)
	privacyStore := privacy.NewStore(db)
	eventStore := eventbus.NewStore(db)
	auditStore := audit.NewStore(db)
	settlementStore := settlement.NewStore(db)

	bus := eventbus.NewBus(eventStore, rdb, logger)
	auditLedger := audit.NewLedger(auditStore, bus)

	screeningEngine := screening.NewEngine(
		screeningStore, requestStore, auditLedger,
		screening.HeuristicEstimator{}, cfg.ScreeningPolicyVersion, cfg.ScreeningReviewThreshold,
	)

	stamper, err := newPolicyStamper(cfg.CoordinatorPolicyKey)
	if err != nil {
		return nil, fmt.Errorf("building policy stamper: %w", err)
	}
	policyReviewEngine := policyreview.NewEngine(policyStore, requestStore, auditLedger, stamper, cfg.CoordinatorPolicyVersion)

	consentEngine := consent.NewEngine(consentStore, auditLedger, queryPlanStore)

	signingKey, err := cryptoutil.GenerateEd25519KeyPair(cfg.PlanSigningKeyID)
	if err != nil {
		return nil, fmt.Errorf("generating plan signing key: %w", err)
	}
	planKeyRing := cryptoutil.NewKeyRing()
	planKeyRing.Add(signingKey)
	queryPlanEngine := queryplan.NewEngine(queryPlanStore, &contractProviderAdapter{consentStore}, auditLedger, signingKey, planKeyRing)

	capsuleKeys := capsule.NewKeyStore()
	dsKeyRing := cryptoutil.NewKeyRing()
	capsuleEngine := capsule.NewEngine(capsuleStore, capsuleKeys, dsKeyRing, newRequesterKeyRegistry(), auditLedger)

	cacheTTL := time.Duration(cfg.CapsuleDefaultTTLSeconds) * time.Second
	kAnonymityGate := privacy.NewKAnonymityGate(rdb, screening.HeuristicEstimator{}, cfg.ScreeningMinCohortSize, cacheTTL)
	linkageWindow := time.Duration(cfg.LinkageWindowSeconds) * time.Second
	linkageGate := privacy.NewLinkageGate(rdb, cfg.LinkageMaxPerWindow, linkageWindow, cfg.LinkageSimilarityThreshold, cfg.LinkageMaxPerWindow)
	prbGate := privacy.NewPRBGate(privacyStore)
	governor := privacy.NewGovernor(kAnonymityGate, linkageGate, prbGate, auditLedger, cfg.CoordinatorPolicyVersion)

	settlementEngine := settlement.NewEngine(settlementStore, auditLedger, cfg.YCTransfersEnabled)

	worker := eventbus.NewWorker(eventStore, bus, logger)

	return &Engines{
		Requests:     requestStore,
		Screening:    screeningEngine,
		PolicyReview: policyReviewEngine,
		Consent:      consentEngine,
		QueryPlan:    queryPlanEngine,
		Capsule:      capsuleEngine,
		Privacy:      governor,
		Settlement:   settlementEngine,
		Audit:        auditLedger,
		Bus:          bus,
		Worker:       worker,
	}, nil
}

// newPolicyStamper refuses to start without a configured key (spec.md §9
// Open Question 2): NewPolicyStamperInsecure's random per-process key is
// reserved for tests, never this production wiring path.
func newPolicyStamper(base64Key string) (*policyreview.PolicyStamper, error) {
	if base64Key == "" {
		return nil, fmt.Errorf("COORDINATOR_POLICY_KEY is not configured")
	}
	key, err := base64.StdEncoding.DecodeString(base64Key)
	if err != nil {
		return nil, fmt.Errorf("decoding COORDINATOR_POLICY_KEY: %w", err)
	}
	return policyreview.NewPolicyStamper(key)
}

// contractProviderAdapter satisfies pkg/queryplan.ContractProvider over
// pkg/consent.Store, decoupling queryplan from consent's concrete types
// (spec §4.4 "the orchestrator resolves the contract it was granted
// under").
type contractProviderAdapter struct {
	consent *consent.Store
}

func (a *contractProviderAdapter) GetContractInfo(ctx context.Context, contractID uuid.UUID) (queryplan.ContractInfo, error) {
	c, err := a.consent.Get(ctx, contractID)
	if err != nil {
		return queryplan.ContractInfo{}, err
	}
	return queryplan.ContractInfo{
		ID:                 c.ID,
		RequestID:          c.RequestID,
		RequesterID:        c.RequesterID,
		Status:             string(c.Status),
		DurationEnd:        c.DurationEnd,
		ScopeHash:          c.ScopeHash,
		PermittedFields:    c.PermittedFields,
		OutputRestrictions: c.OutputRestrictions,
		AllowedTransforms:  c.AllowedTransforms,
		Compensation:       c.CompensationAmount,
	}, nil
}

// requesterKeyRegistry is the process-local adapter satisfying
// pkg/capsule.RequesterKeyResolver. No teacher module owns requester PKI;
// keys are registered out-of-band (by an operator or onboarding flow) and
// looked up here the same way pkg/capsule.KeyStore guards its AES keys.
type requesterKeyRegistry struct {
	mu   sync.Mutex
	keys map[uuid.UUID]*rsa.PublicKey
}

func newRequesterKeyRegistry() *requesterKeyRegistry {
	return &requesterKeyRegistry{keys: make(map[uuid.UUID]*rsa.PublicKey)}
}

func (r *requesterKeyRegistry) Register(requesterID uuid.UUID, key *rsa.PublicKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys[requesterID] = key
}

func (r *requesterKeyRegistry) PublicKeyFor(_ context.Context, requesterID uuid.UUID) (*rsa.PublicKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key, ok := r.keys[requesterID]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "CAPSULE_003", "no public key registered for requester")
	}
	return key, nil
}

func runAPI(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry) error {
	srv := httpserver.NewServer(logger, db, rdb, metricsReg, cfg.MetricsPath)

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("ops server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down ops server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// runWorker drives the canonical event bus consumer and the background
// sweeps spec §4.4/§4.7 describe: capsule TTL sweep and the bus's claim
// loop (pgx FOR UPDATE SKIP LOCKED poll fallback + redis wake-up).
func runWorker(ctx context.Context, cfg *config.Config, logger *slog.Logger, engines *Engines) error {
	logger.Info("worker started")

	go runCapsuleSweep(ctx, logger, engines.Capsule, capsuleSweepInterval(cfg))

	return engines.Worker.Run(ctx)
}

// capsuleSweepInterval sweeps at least as often as ttl/2 (spec §5 "Capsule
// TTL is enforced by the sweeper at least as often as ttl_min / 2"),
// capped at 10 minutes so a long-lived TTL doesn't leave capsules
// unswept for hours.
func capsuleSweepInterval(cfg *config.Config) time.Duration {
	ttl := time.Duration(cfg.CapsuleDefaultTTLSeconds) * time.Second
	half := ttl / 2
	if half <= 0 {
		half = time.Second
	}
	if half > 10*time.Minute {
		return 10 * time.Minute
	}
	return half
}

func runCapsuleSweep(ctx context.Context, logger *slog.Logger, capsuleEngine *capsule.Engine, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := capsuleEngine.Sweep(ctx)
			if err != nil {
				logger.Error("capsule ttl sweep failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("capsule ttl sweep completed", "expired", n)
			}
		}
	}
}
