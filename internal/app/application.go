// Package app assembles the marketplace services over their stores and
// infrastructure. Nil stores and deps fall back to in-process
// implementations, which keeps tests and local development wiring-free.
package app

import (
	"github.com/nexushub/marketplace/internal/app/services/applications"
	"github.com/nexushub/marketplace/internal/app/services/chat"
	"github.com/nexushub/marketplace/internal/app/services/notifications"
	"github.com/nexushub/marketplace/internal/app/storage"
	"github.com/nexushub/marketplace/internal/app/storage/memory"
	"github.com/nexushub/marketplace/internal/logging"
	"github.com/nexushub/marketplace/internal/mailer"
	"github.com/nexushub/marketplace/internal/metrics"
	"github.com/nexushub/marketplace/internal/pubsub"
)

// Stores carries the persistence backends. Nil fields share one
// in-memory store.
type Stores struct {
	Applications  storage.ApplicationStore
	Notifications storage.NotificationStore
	Chat          storage.ChatStore
	Projects      storage.ProjectCatalog
	Users         storage.UserDirectory
}

// Deps carries the infrastructure collaborators. Nil fields get
// in-process defaults; a nil Metrics disables recording.
type Deps struct {
	Counter storage.UnreadCounter
	Broker  pubsub.Broker
	Mailer  mailer.Mailer
	Metrics *metrics.Metrics
	Logger  *logging.Logger
}

// App is the assembled service layer.
type App struct {
	Applications  *applications.Service
	Notifications *notifications.Service
	Chat          *chat.Service

	Log     *logging.Logger
	Metrics *metrics.Metrics
}

// New wires the services.
func New(stores Stores, deps Deps) *App {
	var mem *memory.Store
	fallback := func() *memory.Store {
		if mem == nil {
			mem = memory.NewStore()
		}
		return mem
	}

	if stores.Applications == nil {
		stores.Applications = fallback()
	}
	if stores.Notifications == nil {
		stores.Notifications = fallback()
	}
	if stores.Chat == nil {
		stores.Chat = fallback()
	}
	if stores.Projects == nil {
		stores.Projects = fallback()
	}
	if stores.Users == nil {
		stores.Users = fallback()
	}

	if deps.Logger == nil {
		deps.Logger = logging.NewDefault("app")
	}
	if deps.Counter == nil {
		deps.Counter = memory.NewCounter()
	}
	if deps.Broker == nil {
		deps.Broker = pubsub.NewMemoryBroker()
	}
	if deps.Mailer == nil {
		deps.Mailer = mailer.NewNoop(deps.Logger)
	}

	notifier := notifications.NewService(stores.Notifications, deps.Counter, deps.Metrics, deps.Logger.WithField("service", "notifications"))

	return &App{
		Applications: applications.NewService(
			stores.Applications, stores.Projects, stores.Users,
			notifier, deps.Mailer, deps.Metrics,
			deps.Logger.WithField("service", "applications"),
		),
		Notifications: notifier,
		Chat: chat.NewService(
			stores.Chat, stores.Projects, stores.Users,
			notifier, deps.Broker, deps.Mailer, deps.Metrics,
			deps.Logger.WithField("service", "chat"),
		),
		Log:     deps.Logger,
		Metrics: deps.Metrics,
	}
}
