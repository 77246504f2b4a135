package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/ondo/internal/auth"
	"github.com/dukerupert/ondo/internal/model"
	"github.com/dukerupert/ondo/internal/store"
	"github.com/dukerupert/ondo/internal/tracker"
)

// Schedule says when reminders go out, in Location's wall clock.
type Schedule struct {
	// ReminderHour is the hour on Thursdays from which the session reminder
	// is sent.
	ReminderHour int
	// FeeReminderDay is the day of the month from which admins are told
	// about unpaid fees.
	FeeReminderDay int
	FeeEpoch       tracker.Month
	Location       *time.Location
}

// Scheduler periodically checks for reminders to send.
type Scheduler struct {
	mu       sync.Mutex
	sender   Sender
	push     *store.PushStore
	members  *store.MemberStore
	fees     *store.FeeStore
	users    *store.UserStore
	schedule Schedule
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewScheduler creates a reminder scheduler.
func NewScheduler(sender Sender, ps *store.PushStore, ms *store.MemberStore, fs *store.FeeStore, us *store.UserStore, schedule Schedule, logger *slog.Logger) *Scheduler {
	if schedule.Location == nil {
		schedule.Location = time.Local
	}
	return &Scheduler{
		sender:   sender,
		push:     ps,
		members:  ms,
		fees:     fs,
		users:    us,
		schedule: schedule,
		interval: time.Minute,
		now:      time.Now,
		logger:   logger,
	}
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// PruneSent forgets dedup records older than age.
func (s *Scheduler) PruneSent(age time.Duration) (int64, error) {
	return s.push.CleanupSent(s.now().Add(-age))
}

func (s *Scheduler) tick() {
	now := s.now().In(s.schedule.Location)
	s.checkSessionReminder(now)
	s.checkFeeReminder(now)
}

func (s *Scheduler) checkSessionReminder(now time.Time) {
	if now.Weekday() != time.Thursday || now.Hour() < s.schedule.ReminderHour {
		return
	}

	refID := "session-" + tracker.DateKey(now)
	sent, err := s.push.WasSent(model.NotifTypeSessionReminder, refID)
	if err != nil {
		s.logger.Error("check sent session reminder", "error", err)
		return
	}
	if sent {
		return
	}

	payload := Payload{
		Title: "Training tonight",
		Body:  fmt.Sprintf("Thursday session on %s. See you there.", now.Format("2 January")),
		URL:   "/attendance",
		Tag:   "session-reminder",
	}
	n := s.sendAll(model.NotifTypeSessionReminder, payload, nil)
	s.logger.Info("sent session reminder", "date", tracker.DateKey(now), "delivered", n)

	if err := s.push.RecordSent(model.NotifTypeSessionReminder, refID); err != nil {
		s.logger.Error("record session reminder", "error", err)
	}
}

func (s *Scheduler) checkFeeReminder(now time.Time) {
	month := tracker.MonthOf(now)
	if month.Before(s.schedule.FeeEpoch) || now.Day() < s.schedule.FeeReminderDay {
		return
	}

	refID := "fees-" + month.Key()
	sent, err := s.push.WasSent(model.NotifTypeFeeReminder, refID)
	if err != nil {
		s.logger.Error("check sent fee reminder", "error", err)
		return
	}
	if sent {
		return
	}

	total, unpaid, err := s.unpaidFees(month)
	if err != nil {
		s.logger.Error("count unpaid fees", "month", month.Key(), "error", err)
		return
	}

	if unpaid > 0 {
		payload := Payload{
			Title: "Unpaid fees",
			Body:  fmt.Sprintf("%d of %d members have not paid for %s.", unpaid, total, month.Label()),
			URL:   "/fees?month=" + month.String(),
			Tag:   "fee-reminder",
		}
		n := s.sendAll(model.NotifTypeFeeReminder, payload, s.isAdmin)
		s.logger.Info("sent fee reminder", "month", month.Key(), "unpaid", unpaid, "delivered", n)
	}

	if err := s.push.RecordSent(model.NotifTypeFeeReminder, refID); err != nil {
		s.logger.Error("record fee reminder", "error", err)
	}
}

func (s *Scheduler) unpaidFees(month tracker.Month) (total, unpaid int, err error) {
	members, err := s.members.List()
	if err != nil {
		return 0, 0, err
	}
	if len(members) == 0 {
		return 0, 0, nil
	}
	ids := make([]int64, len(members))
	for i, m := range members {
		ids[i] = m.ID
	}
	rows, err := s.fees.ListMonth(ids, month.Key())
	if err != nil {
		return 0, 0, err
	}

	paid := 0
	for _, r := range rows {
		if tracker.ParseFeeStatus(r.Status) == tracker.Paid {
			paid++
		}
	}
	return len(members), len(members) - paid, nil
}

func (s *Scheduler) isAdmin(userID int64) bool {
	role, err := s.users.Role(userID)
	if err != nil {
		s.logger.Error("look up role", "user_id", userID, "error", err)
		return false
	}
	return auth.ResolveCapability(role).IsAdmin()
}

// sendAll delivers payload to every subscription whose user has notifType
// enabled and passes allow. Expired subscriptions are removed. It returns the
// number delivered.
func (s *Scheduler) sendAll(notifType string, payload Payload, allow func(userID int64) bool) int {
	subs, err := s.push.ListAll()
	if err != nil {
		s.logger.Error("list push subscriptions", "error", err)
		return 0
	}

	delivered := 0
	for i := range subs {
		sub := &subs[i]
		enabled, err := s.push.IsPreferenceEnabled(sub.UserID, notifType)
		if err != nil || !enabled {
			continue
		}
		if allow != nil && !allow(sub.UserID) {
			continue
		}

		if err := s.sender.Send(sub, payload); err != nil {
			if errors.Is(err, ErrExpired) {
				if err := s.push.DeleteByEndpoint(sub.Endpoint); err != nil {
					s.logger.Error("delete expired subscription", "error", err)
				}
				continue
			}
			s.logger.Warn("push send failed", "type", notifType, "subscription", sub.ID, "error", err)
			continue
		}
		delivered++
	}
	return delivered
}
