package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"medifind/internal/api"
	"medifind/internal/app"
	"medifind/internal/booking"
	"medifind/internal/clinic"
	"medifind/internal/config"
	"medifind/internal/docstore"
	"medifind/internal/druginfo"
	"medifind/internal/email"
	"medifind/internal/events"
	"medifind/internal/gemini"
	"medifind/internal/identity"
	"medifind/internal/kvstore"
	"medifind/internal/middleware"
	"medifind/internal/notify"
	"medifind/internal/push"
	"medifind/internal/state"
	"medifind/internal/stream"
	"medifind/internal/workers"

	firebase "firebase.google.com/go/v4"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

// remote groups the collaborators that depend on the remote backend.
type remote struct {
	store    docstore.Store
	push     *push.FirebaseService
	identity identity.Provider
	verifier middleware.TokenVerifier
	close    func()
}

func newRemote(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*remote, error) {
	if cfg.RemoteBackend == "memory" {
		log.Warn("⚠️ In-memory remote backend: data is lost on restart and tokens are not verified")
		return &remote{
			store:    docstore.NewMemory(),
			identity: identity.Anonymous{},
			verifier: middleware.InsecureVerifier{},
			close:    func() {},
		}, nil
	}

	fbApp, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.FirebaseProjectID},
		option.WithCredentialsFile(cfg.FirebaseCredentialsPath))
	if err != nil {
		return nil, err
	}

	fs, err := fbApp.Firestore(ctx)
	if err != nil {
		return nil, err
	}
	store := docstore.NewFirestore(fs)

	idp, authClient, err := identity.NewFirebase(ctx, fbApp)
	if err != nil {
		store.Close()
		return nil, err
	}

	r := &remote{
		store:    store,
		identity: idp,
		verifier: authClient,
		close:    func() { store.Close() },
	}

	if r.push, err = push.NewFirebaseService(ctx, fbApp, log); err != nil {
		log.WithError(err).Warn("⚠️ Push notifications disabled")
	} else {
		log.Info("✅ Firebase initialized")
	}
	return r, nil
}

func main() {
	logs := api.NewLogBuffer(100)
	log := logrus.New()
	log.SetOutput(io.MultiWriter(os.Stdout, logs))
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05"})

	log.Info("🚀 Starting MediFind server")

	cfg, err := config.Load(log)
	if err != nil {
		log.Fatalf("❌ Config error: %v", err)
	}
	if err := cfg.Validate(log); err != nil {
		log.Fatalf("❌ Config error: %v", err)
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}
	if cfg.Environment == "production" {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	loc, err := cfg.Location()
	if err != nil {
		log.WithError(err).Warn("⚠️ Using local time")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kv, err := kvstore.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("❌ Database error: %v", err)
	}
	defer kv.Close()
	if err := kv.Migrate(ctx); err != nil {
		log.Fatalf("❌ Database migration error: %v", err)
	}

	rem, err := newRemote(ctx, cfg, log)
	if err != nil {
		log.Fatalf("❌ Remote backend error: %v", err)
	}
	defer rem.close()

	var publisher events.Publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic, log)
		log.WithField("topic", cfg.KafkaTopic).Info("✅ Consultation events go to Kafka")
	}
	defer publisher.Close()

	var mailer app.Mailer
	if cfg.EnableEmail {
		if svc, err := email.NewEmailService(cfg, log); err != nil {
			log.WithError(err).Warn("⚠️ Email service not configured")
		} else {
			mailer = svc
			log.Info("✅ Email service initialized")
		}
	}

	var application *app.App
	var sender notify.Sender = push.LogSender{Log: log}
	if rem.push != nil {
		sender = push.NewDeviceSender(rem.push,
			func() string { return application.PushToken() },
			func(token string) {
				if err := application.ClearPushToken(context.Background(), token); err != nil {
					log.WithError(err).Warn("⚠️ Failed to clear invalid push token")
				}
			})
	}
	notifier := notify.NewScheduler(sender, log, loc, cfg.SchedulerInterval)

	cache := state.New(kv, log)
	application = app.New(app.Deps{
		Cache:         cache,
		Clinic:        clinic.NewRepository(rem.store, log, cfg.RemoteTimeout),
		Booking:       booking.NewService(rem.store, log, booking.WithTimeout(cfg.BookingTimeout), booking.WithLocation(loc)),
		Notifier:      notifier,
		Drugs:         druginfo.NewClient(cfg.OpenFDABaseURL, cfg.OpenFDAAPIKey, cfg.LookupTimeout, log),
		Assistant:     gemini.NewClient(cfg.GoogleAPIKey, cfg.GeminiModel, cfg.GeminiBaseURL, cfg.AITimeout, log),
		Identity:      rem.identity,
		Events:        publisher,
		Mailer:        mailer,
		Log:           log,
		Location:      loc,
		DoctorTTL:     cfg.DoctorCacheTTL,
		LookupTimeout: cfg.LookupTimeout,
		AITimeout:     cfg.AITimeout,
	})

	hub := stream.NewHub(log)
	hub.Attach(ctx, cache)

	application.Start(ctx)
	go notifier.Start(ctx)
	defer notifier.Stop()

	wm := workers.NewWorkerManager(log)
	wm.RegisterWorker(workers.NewDoctorCacheWorker(application, cfg.DoctorCacheTTL/2))
	wm.RegisterWorker(workers.NewConsultationSyncWorker(application, cfg.ConsultationSyncInt, app.ErrNotSignedIn))
	wm.Start(ctx)
	defer wm.Stop()

	server := api.NewServer(api.Options{
		App:     application,
		Hub:     hub,
		Auth:    middleware.NewAuthMiddleware(rem.verifier, log),
		Logs:    logs,
		Workers: wm,
		Health:  kv.Ping,
		Log:     log,
	})

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("port", cfg.Port).Info("✅ Server ready")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("❌ HTTP server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("🛑 Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("⚠️ HTTP shutdown incomplete")
	}
}
