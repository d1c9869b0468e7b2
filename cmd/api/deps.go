package main

import (
	"context"
	"fmt"
	"log"

	"horizon/internal/domain/accounts"
	"horizon/internal/domain/dashboard"
	"horizon/internal/domain/link"
	"horizon/internal/domain/notification"
	"horizon/internal/domain/session"
	"horizon/internal/domain/user"
	"horizon/internal/infrastructure/crypto"
	"horizon/internal/infrastructure/firebase"
	"horizon/internal/infrastructure/memory"
	"horizon/internal/infrastructure/postgres"
	"horizon/internal/infrastructure/postgres/listener"
	"horizon/internal/infrastructure/provider"
	"horizon/internal/infrastructure/provider/plaidclient"
	"horizon/internal/infrastructure/provider/sandbox"
	httphandlers "horizon/internal/interfaces/http"
	"horizon/internal/interfaces/scheduler"
	"horizon/internal/shared/auth"
	"horizon/internal/shared/config"
	"horizon/internal/shared/messages"
)

// Dependencies holds all initialized application components.
type Dependencies struct {
	DB       *postgres.DB
	Listener *listener.LinkListener

	// Handlers
	LinkHandler         *httphandlers.LinkHandler
	AccountsHandler     *httphandlers.AccountsHandler
	DashboardHandler    *httphandlers.DashboardHandler
	SessionHandler      *httphandlers.SessionHandler
	NotificationHandler *httphandlers.NotificationHandler
	HealthHandler       *httphandlers.HealthHandler
	SandboxHandler      *httphandlers.SandboxHandler // nil unless PROVIDER=sandbox

	// Auth
	JWT      *auth.JWT
	Sessions *session.Service

	// Scheduler jobs
	Jobs []scheduler.Job
}

type stores struct {
	users    user.Repository
	links    link.Repository
	sessions session.Repository
	devices  notification.Repository
}

// NewDependencies initializes all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	deps := &Dependencies{}

	msgs, err := messages.Load(cfg.MessagesFile)
	if err != nil {
		return nil, err
	}

	encryptor, err := crypto.NewEncryptor(cfg.Encryption.Key)
	if err != nil {
		return nil, err
	}

	st, err := deps.openStores(ctx, cfg)
	if err != nil {
		return nil, err
	}

	client, sb, err := newProvider(cfg.Provider)
	if err != nil {
		deps.Close()
		return nil, err
	}

	var messenger notification.Messenger
	if cfg.Firebase.CredentialsFile != "" {
		fcm, err := firebase.NewClient(ctx, cfg.Firebase.CredentialsFile, st.devices.DeactivateToken)
		if err != nil {
			log.Printf("Warning: push notifications disabled: %v", err)
		} else {
			messenger = fcm
		}
	}

	// Domain services
	notifications := notification.NewService(st.devices, messenger, notification.Templates{
		InstitutionLinked:   notification.Text(msgs.InstitutionLinked),
		InstitutionUnlinked: notification.Text(msgs.InstitutionUnlinked),
	})
	manager := link.NewManager(st.links, st.users, client, cfg.Link.TokenTTL)
	exchanger := link.NewExchanger(st.links, client, encryptor, notifications)
	snapshots := accounts.NewSnapshotCache(0)
	aggregator := accounts.NewAggregator(st.links, client, encryptor, snapshots, accounts.Options{
		FetchTimeout:   cfg.Aggregation.FetchTimeout,
		MaxConcurrency: cfg.Aggregation.MaxConcurrency,
		LookbackDays:   cfg.Aggregation.LookbackDays,
	})
	exchanger.SetCache(aggregator)
	sessions := session.NewService(st.sessions, st.users)
	dash := dashboard.NewService(sessions, aggregator, cfg.Aggregation.RecentTransactions)

	// Other instances drop cached snapshots of deleted links. Without a
	// database only the exchanger's own removals apply.
	if deps.DB != nil {
		deps.Listener = listener.NewLinkListener(cfg.Database.ConnectionString(), aggregator)
	}

	errs := httphandlers.NewErrors(msgs.Errors)
	deps.LinkHandler = httphandlers.NewLinkHandler(manager, exchanger, errs)
	deps.AccountsHandler = httphandlers.NewAccountsHandler(aggregator, errs, msgs.Errors, cfg.Aggregation.RecentTransactions)
	deps.DashboardHandler = httphandlers.NewDashboardHandler(dash, errs)
	deps.SessionHandler = httphandlers.NewSessionHandler(sessions, errs, msgs.Errors, cfg.SignInPath)
	deps.NotificationHandler = httphandlers.NewNotificationHandler(notifications, errs)
	if deps.DB != nil {
		deps.HealthHandler = httphandlers.NewHealthHandler(deps.DB)
	} else {
		deps.HealthHandler = httphandlers.NewHealthHandler(nil)
	}
	if sb != nil {
		deps.SandboxHandler = httphandlers.NewSandboxHandler(sb, errs)
	}

	deps.JWT = auth.NewJWT(cfg.JWT.Secret, cfg.JWT.SessionTTL)
	deps.Sessions = sessions
	deps.Jobs = []scheduler.Job{
		scheduler.NewExpireLinkSessionsJob(manager),
		scheduler.NewPurgeRevokedSessionsJob(sessions),
	}

	return deps, nil
}

func (d *Dependencies) openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.DataBackend == config.BackendMemory {
		log.Println("Using in-memory data backend; data is lost on restart")
		return &stores{
			users:    memory.NewUserStore(),
			links:    memory.NewLinkStore(),
			sessions: memory.NewSessionStore(),
			devices:  memory.NewDeviceStore(),
		}, nil
	}

	if cfg.Database.MigrateOnBoot {
		if err := postgres.Migrate(cfg.Database.URL()); err != nil {
			return nil, err
		}
	}

	db, err := postgres.New(ctx, cfg.Database.ConnectionString())
	if err != nil {
		return nil, err
	}
	log.Println("Connected to database")
	d.DB = db

	return &stores{
		users:    postgres.NewUserRepository(db),
		links:    postgres.NewLinkRepository(db),
		sessions: postgres.NewSessionRepository(db),
		devices:  postgres.NewNotificationRepository(db),
	}, nil
}

// newProvider returns the configured provider client, plus the sandbox when
// that is the one in use.
func newProvider(cfg config.ProviderConfig) (provider.Client, *sandbox.Client, error) {
	switch cfg.Name {
	case config.ProviderSandbox:
		log.Println("Using sandbox aggregation provider")
		sb := sandbox.New()
		return sb, sb, nil
	case config.ProviderPlaid:
		client, err := plaidclient.NewClient(plaidclient.Config{
			ClientID:     cfg.ClientID,
			Secret:       cfg.Secret,
			Environment:  cfg.Environment,
			ClientName:   cfg.ClientName,
			Language:     cfg.Language,
			CountryCodes: cfg.CountryCodes,
			Products:     cfg.Products,
			Timeout:      cfg.HTTPTimeout,
		})
		if err != nil {
			return nil, nil, err
		}
		log.Printf("Using Plaid (%s)", cfg.Environment)
		return client, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown provider %q", cfg.Name)
	}
}

// Close releases all resources held by dependencies.
func (d *Dependencies) Close() {
	if d.Listener != nil {
		d.Listener.Stop()
	}
	if d.DB != nil {
		d.DB.Close()
	}
}
