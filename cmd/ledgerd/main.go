// Command ledgerd is the kernel's process entrypoint: it loads the
// compiled policy pack and configuration, wires every internal service
// around one *sql.DB, starts the HTTP ingress and the two cron sweeps,
// and blocks until an operator signals shutdown.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/acctkernel/ledger/domain/engine"
	"github.com/acctkernel/ledger/domain/event"
	"github.com/acctkernel/ledger/domain/money"
	"github.com/acctkernel/ledger/domain/policy"
	"github.com/acctkernel/ledger/domain/subledger"
	"github.com/acctkernel/ledger/infrastructure/middleware"
	"github.com/acctkernel/ledger/infrastructure/resilience"
	"github.com/acctkernel/ledger/internal/approvalsvc"
	"github.com/acctkernel/ledger/internal/auditlog"
	"github.com/acctkernel/ledger/internal/coordinator"
	"github.com/acctkernel/ledger/internal/dispatch"
	"github.com/acctkernel/ledger/internal/engines"
	"github.com/acctkernel/ledger/internal/eventstore"
	"github.com/acctkernel/ledger/internal/guardeval"
	"github.com/acctkernel/ledger/internal/ingest"
	"github.com/acctkernel/ledger/internal/journalwriter"
	"github.com/acctkernel/ledger/internal/migrate"
	"github.com/acctkernel/ledger/internal/packload"
	"github.com/acctkernel/ledger/internal/period"
	"github.com/acctkernel/ledger/internal/reconcile"
	"github.com/acctkernel/ledger/internal/registry"
	"github.com/acctkernel/ledger/internal/sequence"
	"github.com/acctkernel/ledger/internal/sweep"
	"github.com/acctkernel/ledger/internal/tracesel"
	"github.com/acctkernel/ledger/pkg/config"
	"github.com/acctkernel/ledger/pkg/logger"
	"github.com/acctkernel/ledger/pkg/pgnotify"
	"github.com/acctkernel/ledger/services/ledgerapi"
)

func main() {
	configPath := flag.String("config", "", "path to config file (JSON or YAML)")
	packPath := flag.String("pack", "", "path to the compiled policy pack artifact")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	runMigrations := flag.Bool("migrate", true, "run embedded schema migrations on startup")
	flag.Parse()

	cfg := config.New()
	if trimmed := strings.TrimSpace(*configPath); trimmed != "" {
		loaded, err := loadConfigFile(trimmed)
		if err != nil {
			log.Fatalf("load config %s: %v", trimmed, err)
		}
		cfg = loaded
	} else if loaded, err := config.Load(); err == nil {
		cfg = loaded
	}

	log := logger.New(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePrefix: cfg.Logging.FilePrefix,
	})
	entry := log.WithField("component", "ledgerd")

	if strings.TrimSpace(*packPath) == "" {
		entry.Fatal("no policy pack supplied: pass -pack")
	}
	pack, err := packload.Load(*packPath)
	if err != nil {
		entry.WithError(err).Fatal("failed to load policy pack")
	}

	rootCtx := context.Background()
	db, err := connectWithRetry(rootCtx, cfg.Database)
	if err != nil {
		entry.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()
	configurePool(db, cfg)

	if *runMigrations && cfg.Database.MigrateOnStart {
		if err := migrate.Apply(db); err != nil {
			entry.WithError(err).Fatal("failed to apply migrations")
		}
	}

	reg, err := registry.New(pack)
	if err != nil {
		entry.WithError(err).Fatal("failed to load policy pack into registry")
	}

	reconciler := reconcile.New(reconcile.NewPostgresBalanceReader(db))
	reconcileChecker := reconciliationChecker(pack, reconciler, money.Currency(cfg.Ledger.DefaultCurrency))

	periodSvc := period.New(period.NewPostgresStore(db), reconcileChecker)
	ingestor := ingest.New(ingest.NewPostgresIdempotencyStore(db))
	dispatcher := dispatch.New(engines.Standard())
	writer := journalwriter.New(journalwriter.NewPostgresStore(db), sequence.NewPostgresStore(), reconciler)
	auditLog := auditlog.New(auditlog.NewPostgresStore(db), sequence.NewPostgresStore())
	outcomes := coordinator.NewPostgresOutcomeStore(db)

	coord := coordinator.New(ingestor, periodSvc, reg, dispatcher, writer, outcomes, auditLog,
		cfg.Ledger.MaxRetries, fiscalPeriodOf)

	events := eventstore.NewPostgresStore(db)
	traceSel := tracesel.New(tracesel.NewPostgresReader(db))
	approvals := approvalsvc.New(approvalsvc.NewPostgresStore(db), currentPolicyVersion(pack))

	bus, err := pgnotify.NewWithDB(db, cfg.Database.DSN)
	if err != nil {
		entry.WithError(err).Warn("journal-entry notifications disabled: failed to attach listener")
		bus = nil
	}

	packLoader := func() policy.Pack { return pack }
	contractsFor := requiredEngineContracts
	paramMappingFor := engineParamMappingFor(pack)
	buildEvalCtx := evalContextBuilder()

	router := ledgerapi.NewRouter(ledgerapi.Deps{
		DB:           db,
		Logger:       entry,
		Coordinator:  coord,
		Approvals:    approvals,
		TraceSel:     traceSel,
		Audit:        auditLog,
		Events:       events,
		Bus:          bus,
		PackLoader:   packLoader,
		BuildEvalCtx: buildEvalCtx,
		Contracts:    contractsFor,
		ParamMapping: paramMappingFor,
		Invokers:     engines.Standard(),
	})

	healthChecker := middleware.NewHealthChecker("1.0.0")
	healthChecker.RegisterCheck("database", func() error {
		return db.PingContext(rootCtx)
	})
	ready := true

	mux := http.NewServeMux()
	mux.Handle("/readyz", middleware.ReadinessHandler(&ready))
	mux.Handle("/healthz/detail", healthChecker.Handler())
	mux.Handle("/", router)

	listenAddr := determineAddr(*addr, cfg)
	server := &http.Server{Addr: listenAddr, Handler: mux}

	cronBreaker := resilience.New(resilience.DefaultConfig())
	retrySweep := sweep.NewRetry(db, traceSel.Reader().(sweep.PendingLister), events, coord, packLoader,
		buildEvalCtx, contractsFor, paramMappingFor, engines.Standard(), entry.WithField("sweep", "retry"))
	periodCloseSweep := sweep.NewPeriodClose(db, periodSvc, cfg.Ledger.PeriodCloseGraceHours,
		entry.WithField("sweep", "period_close"))

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Cron.RetrySweepSpec, guardedSweep(cronBreaker, retrySweep.Run, entry)); err != nil {
		entry.WithError(err).Fatal("failed to schedule retry sweep")
	}
	if _, err := scheduler.AddFunc(cfg.Cron.PeriodCloseSweepSpec, guardedSweep(cronBreaker, periodCloseSweep.Run, entry)); err != nil {
		entry.WithError(err).Fatal("failed to schedule period-close sweep")
	}
	scheduler.Start()
	defer scheduler.Stop()

	shutdown := middleware.NewGracefulShutdown(server, 10*time.Second)
	shutdown.OnShutdown(func() {
		ready = false
		if bus != nil {
			_ = bus.Close()
		}
	})
	shutdown.ListenForSignals()

	go func() {
		entry.WithField("addr", listenAddr).Info("ledgerd listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			entry.WithError(err).Fatal("http server failed")
		}
	}()

	shutdown.Wait()
}

// connectWithRetry dials the database through sqlx (so Stmt/NamedExec are
// available to any store that wants them, though every existing store here
// takes the plain *sql.DB) and retries transient failures at startup — the
// database is often still coming up when ledgerd is restarted inside the
// same compose/k8s rollout.
func connectWithRetry(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	dsn := resolveDSN(cfg)
	var conn *sqlx.DB
	err := resilience.Retry(ctx, resilience.DefaultRetryConfig(), func() error {
		var err error
		conn, err = sqlx.Connect(cfg.Driver, dsn)
		if err != nil {
			return err
		}
		return conn.PingContext(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.Driver, err)
	}
	return conn.DB, nil
}

func resolveDSN(cfg config.DatabaseConfig) string {
	if dsn := strings.TrimSpace(cfg.DSN); dsn != "" {
		return dsn
	}
	return cfg.ConnectionString()
}

func configurePool(db *sql.DB, cfg *config.Config) {
	if cfg.Database.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	}
	if cfg.Database.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	}
	if cfg.Database.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetime) * time.Second)
	}
}

func determineAddr(flagAddr string, cfg *config.Config) string {
	if trimmed := strings.TrimSpace(flagAddr); trimmed != "" {
		return trimmed
	}
	host := cfg.Server.Host
	if host == "" {
		host = "0.0.0.0"
	}
	port := cfg.Server.Port
	if port == 0 {
		port = 8080
	}
	return fmt.Sprintf("%s:%d", host, port)
}

func loadConfigFile(path string) (*config.Config, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return config.LoadFile(path)
	case ".json":
		return config.LoadConfig(path)
	default:
		if cfg, err := config.LoadFile(path); err == nil {
			return cfg, nil
		}
		return config.LoadConfig(path)
	}
}

// guardedSweep wraps a sweep's Run in a circuit breaker so repeated
// database failures during a sweep pass stop hammering the connection
// pool instead of retrying every cron tick.
func guardedSweep(breaker *resilience.CircuitBreaker, run func(ctx context.Context) error, log *logrus.Entry) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := breaker.Execute(ctx, func() error { return run(ctx) }); err != nil {
			log.WithError(err).Warn("sweep pass failed")
		}
	}
}

// fiscalPeriodOf maps an effective date to the fiscal period code the
// coordinator posts against. Calendar-month periods ("2026-01") are the
// only fiscal calendar this kernel understands; a non-calendar fiscal
// calendar would plug in here.
func fiscalPeriodOf(effectiveDate time.Time) string {
	return effectiveDate.UTC().Format("2006-01")
}

// requiredEngineContracts resolves p's declared engine names against the
// pack's engine contract table.
func requiredEngineContracts(p policy.Policy, pack policy.Pack) map[engine.Name]policy.EngineContract {
	out := make(map[engine.Name]policy.EngineContract, len(p.RequiredEngines))
	for _, name := range p.RequiredEngines {
		if contract, ok := pack.EngineContracts[name]; ok {
			out[engine.Name(name)] = contract
		}
	}
	return out
}

// engineParamMappingFor closes over the loaded pack (safe: the pack is
// immutable for the process lifetime) and resolves a policy's
// EngineParametersRef into the field-path mapping for one required engine.
func engineParamMappingFor(pack policy.Pack) func(p policy.Policy, name engine.Name) map[string]string {
	return func(p policy.Policy, name engine.Name) map[string]string {
		return pack.EngineParamMapping(p.EngineParametersRef, string(name))
	}
}

// evalContextBuilder builds the guardeval.Context where-predicates,
// guards, and engine parameter mappings evaluate against for one event.
// Party and Contract are left empty here: this kernel has no party/contract
// master-data lookup of its own, so policies that reference party.* or
// contract.* fields rely on an external enrichment step populating
// evt.Payload["party"]/["contract"] before the event reaches ledgerd.
func evalContextBuilder() coordinator.EvalContextBuilder {
	return func(evt event.Event) guardeval.Context {
		return guardeval.Context{
			Payload: evt.Payload,
			Event: map[string]interface{}{
				"event_id":        evt.EventID,
				"event_type":      string(evt.EventType),
				"actor_id":        evt.ActorID,
				"producer":        evt.Producer,
				"occurred_at":     evt.OccurredAt.Format(time.RFC3339),
				"effective_date":  evt.EffectiveDate.Format(time.RFC3339),
				"idempotency_key": evt.IdempotencyKey,
			},
		}
	}
}

// reconciliationChecker builds a period.ReconciliationChecker that walks
// reconcile.CloseOrder, running each declared subledger contract's
// close-time check against the kernel's default posting currency.
func reconciliationChecker(pack policy.Pack, reconciler *reconcile.Reconciler, defaultCurrency money.Currency) period.ReconciliationChecker {
	return func(ctx context.Context, tx *sql.Tx, periodCode string) error {
		for _, subledgerType := range reconcile.CloseOrder {
			contract, ok := pack.SubledgerContracts[subledgerType]
			if !ok {
				continue
			}
			binding, ok := pack.ResolveRole(contract.ControlAccountRole)
			if !ok {
				return fmt.Errorf("reconciliation: no role binding for %q", contract.ControlAccountRole)
			}
			domContract := subledger.ControlContract{
				SubledgerType:    contract.SubledgerType,
				ControlAccountID: binding.AccountID,
				TolerancePlaces:  contract.TolerancePlaces,
				EnforceOnPost:    contract.EnforceOnPost,
				EnforceOnClose:   contract.EnforceOnClose,
			}
			if err := reconciler.CheckAtClose(ctx, tx, domContract, defaultCurrency); err != nil {
				return err
			}
		}
		return nil
	}
}

// currentPolicyVersion resolves the highest version of a policy name found
// anywhere in the loaded pack (effective windows are not consulted), for
// approvalsvc's re-evaluation of a BLOCKED outcome's approval.
func currentPolicyVersion(pack policy.Pack) approvalsvc.CurrentPolicyVersion {
	return func(policyName string) (int, error) {
		best := -1
		for _, policies := range pack.PoliciesByEventType {
			for _, p := range policies {
				if p.Name != policyName {
					continue
				}
				if p.Version > best {
					best = p.Version
				}
			}
		}
		if best < 0 {
			return 0, fmt.Errorf("currentPolicyVersion: no policy named %q in pack", policyName)
		}
		return best, nil
	}
}
