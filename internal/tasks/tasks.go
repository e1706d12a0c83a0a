package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"permabay/p120/internal/config"
	"permabay/p120/internal/email"
	"permabay/p120/internal/models"
	"permabay/p120/internal/services"
)

// TaskType defines the type of a background task.
const (
	TypeEmailDelivery = "email:deliver"
	TypeSlotSweep     = "slots:sweep"
)

// --- Task Client (Enqueuing tasks) ---

func NewClient(rdb *redis.Client) *asynq.Client {
	return asynq.NewClient(asynq.RedisClientOpt{
		Addr:     rdb.Options().Addr,
		Password: rdb.Options().Password,
		DB:       rdb.Options().DB,
	})
}

// StatusEmailPayload carries a status-change notice to the email worker.
type StatusEmailPayload struct {
	To        string        `json:"to"`
	ListingID string        `json:"listing_id"`
	Title     string        `json:"title"`
	NewStatus models.Status `json:"new_status"`
	Feedback  string        `json:"feedback,omitempty"`
	Slot      *int          `json:"slot,omitempty"`
}

// Notifier implements services.Notifier by handing status-change events to the
// background email worker. Enqueue failure propagates to the caller, which
// logs and drops it.
type Notifier struct {
	client *asynq.Client
}

func NewNotifier(client *asynq.Client) *Notifier {
	return &Notifier{client: client}
}

func (n *Notifier) NotifyStatusChange(ctx context.Context, event models.StatusChangeEvent) error {
	payload, err := json.Marshal(StatusEmailPayload{
		To:        event.SellerEmail,
		ListingID: event.ListingID.String(),
		Title:     event.Title,
		NewStatus: event.NewStatus,
		Feedback:  event.Feedback,
		Slot:      event.Slot,
	})
	if err != nil {
		return fmt.Errorf("marshal status email payload: %w", err)
	}
	task := asynq.NewTask(TypeEmailDelivery, payload)
	if _, err := n.client.EnqueueContext(ctx, task, asynq.Queue("default"), asynq.MaxRetry(5)); err != nil {
		return fmt.Errorf("enqueue status email: %w", err)
	}
	return nil
}

// --- Task Server (Processing tasks) ---

// TaskProcessor handles the processing of tasks. It holds dependencies needed
// by task handlers.
type TaskProcessor struct {
	cfg         *config.Config
	emailSender email.Sender
	sweeper     services.ISweeperService
}

func NewTaskProcessor(cfg *config.Config, emailSender email.Sender, sweeper services.ISweeperService) *TaskProcessor {
	return &TaskProcessor{
		cfg:         cfg,
		emailSender: emailSender,
		sweeper:     sweeper,
	}
}

// SetupServer configures an Asynq server and the mux with all background task
// handlers registered. The caller runs it.
func SetupServer(rdb *redis.Client, processor *TaskProcessor) (*asynq.Server, *asynq.ServeMux) {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     rdb.Options().Addr,
			Password: rdb.Options().Password,
			DB:       rdb.Options().DB,
		},
		asynq.Config{
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Printf("[Asynq Error] Task Type: %s, Payload: %s, Error: %v", task.Type(), string(task.Payload()), err)
			}),
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeEmailDelivery, processor.HandleEmailDeliveryTask)
	mux.HandleFunc(TypeSlotSweep, processor.HandleSlotSweepTask)
	return srv, mux
}

// SetupScheduler configures the recurring expiry sweep. Overlapping sweep runs
// are harmless since the sweep is idempotent.
func SetupScheduler(rdb *redis.Client, cfg *config.Config) (*asynq.Scheduler, error) {
	scheduler := asynq.NewScheduler(
		asynq.RedisClientOpt{
			Addr:     rdb.Options().Addr,
			Password: rdb.Options().Password,
			DB:       rdb.Options().DB,
		},
		&asynq.SchedulerOpts{Location: time.UTC},
	)
	spec := fmt.Sprintf("@every %s", cfg.SweepInterval)
	if _, err := scheduler.Register(spec, asynq.NewTask(TypeSlotSweep, nil), asynq.Queue("critical")); err != nil {
		return nil, fmt.Errorf("register sweep schedule: %w", err)
	}
	return scheduler, nil
}

// --- Task Handlers ---

// HandleSlotSweepTask runs one expiry pass over the slot board.
func (p *TaskProcessor) HandleSlotSweepTask(ctx context.Context, t *asynq.Task) error {
	result, err := p.sweeper.Sweep(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("expiry sweep: %w", err)
	}
	if result.Expired > 0 || result.Backfilled > 0 {
		log.Printf("Sweep finished: %d expired, %d backfilled", result.Expired, result.Backfilled)
	}
	return nil
}

// HandleEmailDeliveryTask renders and sends one status-change notice.
func (p *TaskProcessor) HandleEmailDeliveryTask(ctx context.Context, t *asynq.Task) error {
	var payload StatusEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal email task payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.To == "" {
		return fmt.Errorf("email task has no recipient: %w", asynq.SkipRetry)
	}

	subject, body := p.renderStatusEmail(payload)

	fromAddress := p.cfg.SmtpFromAddress
	if fromAddress == "" {
		fromAddress = "noreply@example.com"
		log.Printf("Warning: SmtpFromAddress not configured, using fallback %s for email to %s", fromAddress, payload.To)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("To: %s\r\n", payload.To))
	sb.WriteString(fmt.Sprintf("From: %s\r\n", fromAddress))
	sb.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	sb.WriteString("Date: " + time.Now().Format(time.RFC1123Z) + "\r\n")
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(body)
	sb.WriteString("\r\n")

	if err := p.emailSender.Send(ctx, []string{payload.To}, subject, []byte(sb.String())); err != nil {
		log.Printf("Email sending failed for %s: %v", payload.To, err)
		return err
	}
	return nil
}

func (p *TaskProcessor) renderStatusEmail(payload StatusEmailPayload) (subject, body string) {
	switch payload.NewStatus {
	case models.StatusApproved:
		subject = fmt.Sprintf("Your listing %q was approved", payload.Title)
		body = fmt.Sprintf("Good news! Your listing %q is now live.", payload.Title)
		if payload.Slot != nil {
			body += fmt.Sprintf("\nPermanent link: %s/P%d", p.cfg.PublicBaseURL, *payload.Slot)
		}
	case models.StatusRejected:
		subject = fmt.Sprintf("Your listing %q was rejected", payload.Title)
		body = fmt.Sprintf("Your listing %q was not approved.", payload.Title)
		if payload.Feedback != "" {
			body += fmt.Sprintf("\nReviewer feedback: %s", payload.Feedback)
		}
		body += "\nYou may revise and relist it at any time."
	case models.StatusExpired:
		subject = fmt.Sprintf("Your listing %q has expired", payload.Title)
		body = fmt.Sprintf("Your listing %q reached the end of its paid period and its permanent link has been released.\nYou may relist it at any time.", payload.Title)
	default:
		subject = fmt.Sprintf("Update on your listing %q", payload.Title)
		body = fmt.Sprintf("Your listing %q is now %s.", payload.Title, payload.NewStatus)
	}
	return subject, body
}
