package main

import (
	"context"
	"log"

	"flint/internal/domain/account"
	"flint/internal/domain/connection"
	"flint/internal/domain/dashboard"
	"flint/internal/domain/identity"
	"flint/internal/domain/notification"
	"flint/internal/domain/transaction"
	"flint/internal/infrastructure/aggregator"
	"flint/internal/infrastructure/bankapi"
	"flint/internal/infrastructure/cache"
	"flint/internal/infrastructure/crypto"
	"flint/internal/infrastructure/firebase"
	"flint/internal/infrastructure/postgres"
	httphandlers "flint/internal/interfaces/http"
	"flint/internal/shared/auth"
	"flint/internal/shared/config"
	"flint/internal/shared/messages"
)

// Dependencies holds all initialized application components.
type Dependencies struct {
	DB    *postgres.DB
	Cache cache.Store

	// Handlers
	AuthHandler         *httphandlers.AuthHandler
	ConnectionHandler   *httphandlers.ConnectionHandler
	AccountHandler      *httphandlers.AccountHandler
	DashboardHandler    *httphandlers.DashboardHandler
	TransactionHandler  *httphandlers.TransactionHandler
	NotificationHandler *httphandlers.NotificationHandler

	// Auth
	JWT *auth.JWT

	// Services and repositories (for the scheduler job provider)
	SyncService         *connection.SyncService
	CleanupService      *identity.CleanupService
	TransactionService  *transaction.Service
	NotificationService *notification.Service
	UserRepo            *postgres.UserRepository
	ConnectionRepo      *postgres.ConnectionRepository
}

// repairNotifier adapts the notification service to the registrar's
// fire-and-forget notifier contract.
type repairNotifier struct {
	notifications *notification.Service
}

func (n *repairNotifier) IdentityRepaired(ctx context.Context, userID int64) {
	if err := n.notifications.SendIdentityRepaired(ctx, userID); err != nil {
		log.Printf("User %d: repair notification failed: %v", userID, err)
	}
}

// NewDependencies initializes all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	db, err := postgres.New(cfg.Database.ConnectionString())
	if err != nil {
		return nil, err
	}
	log.Println("Connected to database")

	encryptor, err := crypto.NewEncryptor(cfg.Encryption.Key)
	if err != nil {
		return nil, err
	}

	// Repositories
	userRepo := postgres.NewUserRepository(db)
	identityRepo := postgres.NewIdentityRepository(db, encryptor)
	connectionRepo := postgres.NewConnectionRepository(db)
	bankAccountRepo := postgres.NewBankAccountRepository(db, encryptor)
	holdingRepo := postgres.NewHoldingRepository(db)
	transactionRepo := postgres.NewTransactionRepository(db)
	notificationRepo := postgres.NewNotificationRepository(db)

	// Cache: Redis when configured, in-process otherwise
	var store cache.Store
	if cfg.Cache.RedisAddr != "" {
		redisStore, err := cache.NewRedis(cfg.Cache.RedisAddr, cfg.Cache.RedisPassword)
		if err != nil {
			return nil, err
		}
		store = redisStore
		log.Printf("Connected to Redis at %s", cfg.Cache.RedisAddr)
	} else {
		store = cache.NewMemory()
		log.Println("Using in-process cache")
	}

	// Provider clients
	aggregatorClient := aggregator.NewClient(
		cfg.Providers.AggregatorBaseURL,
		cfg.Providers.AggregatorClientID,
		cfg.Providers.AggregatorSecret,
		cfg.Providers.AggregatorTimeout,
	)
	bankClient := bankapi.NewClient(cfg.Providers.BankBaseURL, cfg.Providers.BankTimeout)

	// Notification texts and push delivery
	texts := messages.Default()
	if cfg.Firebase.MessagesFile != "" {
		loadedTexts, err := messages.Load(cfg.Firebase.MessagesFile)
		if err != nil {
			log.Printf("Warning: falling back to built-in notification texts: %v", err)
		} else {
			texts = loadedTexts
		}
	}

	var messenger notification.Messenger
	if cfg.Firebase.CredentialsFile != "" {
		fcmClient, err := firebase.NewClient(ctx, cfg.Firebase.CredentialsFile, notificationRepo.DeactivateToken)
		if err != nil {
			log.Printf("Warning: Firebase messaging disabled: %v", err)
		} else {
			messenger = fcmClient
			log.Println("Firebase messaging initialized")
		}
	}

	notificationService := notification.NewService(notificationRepo, messenger, texts)

	// Domain services
	registrar := identity.NewRegistrar(identityRepo, db, aggregatorClient,
		&repairNotifier{notifications: notificationService})
	syncService := connection.NewSyncService(connectionRepo, identityRepo, aggregatorClient)
	cleanupService := identity.NewCleanupService(identityRepo, aggregatorClient)
	linker := account.NewLinker(bankAccountRepo, userRepo, connectionRepo)
	transactionService := transaction.NewService(transactionRepo, bankAccountRepo, bankClient)
	merger := dashboard.NewMerger(bankAccountRepo, bankClient, identityRepo, aggregatorClient, holdingRepo)

	// Auth
	jwt := auth.NewJWT(cfg.JWT.Secret)

	// Handlers
	viewCache := httphandlers.NewViewCache(store, cfg.Cache.DashboardTTL)
	authHandler := httphandlers.NewAuthHandler(userRepo, jwt)
	connectionHandler := httphandlers.NewConnectionHandler(registrar, syncService, connectionRepo, viewCache, cfg.Limits.StaleConnectionAfter)
	accountHandler := httphandlers.NewAccountHandler(linker, bankAccountRepo, connectionRepo, viewCache)
	dashboardHandler := httphandlers.NewDashboardHandler(merger, viewCache)
	transactionHandler := httphandlers.NewTransactionHandler(transactionService)
	notificationHandler := httphandlers.NewNotificationHandler(notificationService)

	return &Dependencies{
		DB:                  db,
		Cache:               store,
		AuthHandler:         authHandler,
		ConnectionHandler:   connectionHandler,
		AccountHandler:      accountHandler,
		DashboardHandler:    dashboardHandler,
		TransactionHandler:  transactionHandler,
		NotificationHandler: notificationHandler,
		JWT:                 jwt,
		SyncService:         syncService,
		TransactionService:  transactionService,
		CleanupService:      cleanupService,
		NotificationService: notificationService,
		UserRepo:            userRepo,
		ConnectionRepo:      connectionRepo,
	}, nil
}

// Close releases all resources held by dependencies.
func (d *Dependencies) Close() {
	if d.DB != nil {
		d.DB.Close()
	}
}
