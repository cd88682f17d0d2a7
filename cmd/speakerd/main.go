package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"speaker_scheduler/internal/app"
	"speaker_scheduler/internal/clock"
	"speaker_scheduler/internal/infra/config"
	idb "speaker_scheduler/internal/infra/database"
	"speaker_scheduler/internal/infra/logger"
	"speaker_scheduler/internal/infra/notify"
	"speaker_scheduler/internal/infra/scheduler"
	"speaker_scheduler/internal/infra/telegram"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatalf("Could not load application configuration: %v", err)
	}

	logger.Init(cfg)
	mainLogger := logger.Component("main")
	mainLogger.WithFields(logrus.Fields{
		"log_level":   cfg.LogLevel,
		"environment": cfg.Environment,
		"timezone":    cfg.Location.String(),
		"event":       cfg.EventName,
		"weekday":     cfg.EventWeekday.String(),
		"slot_times":  cfg.SlotTimes,
	}).Info("Configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize Database Connection
	db, err := idb.NewPostgresConnection(ctx, cfg.DatabaseURL, logger.Component("database"))
	if err != nil {
		mainLogger.Fatalf("Could not connect to database: %v", err)
	}
	defer db.Close()

	if err := idb.Migrate(ctx, db, logger.Component("migrations")); err != nil {
		mainLogger.Fatalf("Could not apply database migrations: %v", err)
	}

	// Initialize Repositories
	slotRepo := idb.NewPostgresSlotRepository(db, cfg.Location)
	personRepo := idb.NewPostgresPersonRepository(db)
	clk := clock.NewSystem(cfg.Location)

	// Notification transports
	mailer := notify.NewSMTPMailer(notify.MailerConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPass,
		From:     cfg.FromEmail,
		AppName:  cfg.AppName,
		AppURL:   cfg.AppURL,
	}, logger.Component("mailer"))
	if !mailer.Configured() {
		mainLogger.Warn("SMTP_HOST is not set; emails will only be logged")
	}

	var sms notify.SMSSender
	if cfg.SMSConfigured() {
		sms = notify.NewTwilioSMS(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber)
		mainLogger.Info("Twilio SMS enabled")
	}
	dispatcher := notify.NewDispatcher(sms, mailer, cfg.AdminEmail, logger.Component("dispatcher"))

	var bot *telebot.Bot
	if cfg.TelegramToken != "" {
		botLogger := logger.Component("telegram")
		bot, err = telebot.NewBot(telebot.Settings{
			Token:  cfg.TelegramToken,
			Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
			OnError: func(err error, c telebot.Context) {
				entry := botLogger.WithError(err)
				if c != nil && c.Sender() != nil && c.Chat() != nil {
					entry = entry.WithFields(logrus.Fields{
						"message":   c.Text(),
						"sender_id": c.Sender().ID,
						"chat_id":   c.Chat().ID,
					})
				}
				entry.Error("Telegram handler error")
			},
		})
		if err != nil {
			mainLogger.Fatalf("Could not create Telegram bot: %v", err)
		}
		dispatcher.WithOperatorChat(telegram.NewTelebotAdapter(bot), cfg.OperatorTelegramID)
	}

	// Services
	materializer := app.NewMaterializer(slotRepo, clk, app.Recurrence{
		Weekday: cfg.EventWeekday,
		Times:   cfg.SlotTimes,
	}, logger.Component("materializer"))

	thresholds := app.DefaultThresholds(cfg.ReminderWindow)
	if err := app.ValidateThresholds(thresholds); err != nil {
		mainLogger.Fatalf("Invalid reminder configuration: %v", err)
	}
	reminderService := app.NewReminderService(slotRepo, personRepo, dispatcher, clk,
		thresholds, cfg.EventName, logger.Component("reminders"))

	digestService := app.NewDigestService(slotRepo, personRepo, dispatcher, materializer, clk, app.DigestSettings{
		EventName:    cfg.EventName,
		Weekday:      cfg.EventWeekday,
		HorizonDays:  cfg.DigestHorizonDays,
		Groups:       cfg.DigestGroups,
		HorizonWeeks: cfg.HorizonWeeks,
	}, logger.Component("digest"))

	assignmentService := app.NewAssignmentService(slotRepo, personRepo, dispatcher, dispatcher, clk,
		cfg.EventName, logger.Component("assignments"))

	// Scheduler
	sched := scheduler.New(materializer, reminderService, digestService, scheduler.Settings{
		Location:             cfg.Location,
		CronSpecMaterialize:  cfg.CronSpecMaterialize,
		CronSpecDigest:       cfg.CronSpecDigest,
		ReminderPollInterval: cfg.ReminderPollInterval,
		JobTimeout:           cfg.JobTimeout,
		HorizonWeeks:         cfg.HorizonWeeks,
	}, logger.Component("scheduler"))
	if err := sched.Start(); err != nil {
		mainLogger.Fatalf("Could not start scheduler: %v", err)
	}

	if bot != nil {
		telegram.RegisterOperatorHandlers(ctx, bot, telegram.OperatorServices{
			Materializer: materializer,
			Digest:       digestService,
			Assignments:  assignmentService,
			HorizonWeeks: cfg.HorizonWeeks,
		}, cfg.OperatorTelegramID, logger.Component("operator_console"))
		mainLogger.Info("Operator console registered")

		// Start bot in a goroutine so it doesn't block graceful shutdown handling
		go bot.Start()
	}

	mainLogger.Info("Application setup complete.")
	<-ctx.Done()

	mainLogger.Info("Shutting down application...")
	if bot != nil {
		bot.Stop()
	}
	sched.Stop()
	mainLogger.Info("Application shut down gracefully.")
}
