package notifications

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/fitlink-app/fitlink-server/cmd/models"
	"github.com/robfig/cron/v3"
)

// ReservationSource is the slice of the booking engine the reminder jobs
// read from.
type ReservationSource interface {
	FindByDate(ctx context.Context, date string) ([]models.Reservation, error)
	FindBetweenTimes(ctx context.Context, date, from, to string) ([]models.Reservation, error)
}

// ReminderScheduler runs the recurring reservation reminders: a morning
// digest at 06:00 and an hour-ahead alert checked every five minutes. All
// schedules run on display-timezone wall clock.
type ReminderScheduler struct {
	cron         *cron.Cron
	reservations ReservationSource
	push         *PushService
	now          func() time.Time
}

func NewReminderScheduler(reservations ReservationSource, push *PushService) *ReminderScheduler {
	return &ReminderScheduler{
		cron:         cron.New(cron.WithLocation(models.Seoul)),
		reservations: reservations,
		push:         push,
		now:          time.Now,
	}
}

func (s *ReminderScheduler) Start() error {
	if _, err := s.cron.AddFunc("0 6 * * *", s.SendMorningReminders); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc("*/5 * * * *", s.SendHourAheadReminders); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

func (s *ReminderScheduler) Stop() {
	s.cron.Stop()
}

// SendMorningReminders tells every member with a session today what time it
// starts.
func (s *ReminderScheduler) SendMorningReminders() {
	today := s.now().In(models.Seoul).Format("2006-01-02")

	reservations, err := s.reservations.FindByDate(context.Background(), today)
	if err != nil {
		log.Printf("reminders: load today's reservations: %v", err)
		return
	}

	for _, res := range reservations {
		if res.Member == nil || res.Member.Account == nil || res.Schedule == nil {
			continue
		}
		s.push.Notify(res.Member.Account.ID, "오늘 예약 안내",
			fmt.Sprintf("%s에 예약된 PT가 있습니다.", startTimeText(res.Schedule)))
	}
}

// SendHourAheadReminders alerts both sides of every session starting roughly
// one hour from now. The two-minute slack on each side of the window covers
// scheduler jitter between five-minute ticks.
func (s *ReminderScheduler) SendHourAheadReminders() {
	now := s.now().In(models.Seoul)
	target := now.Add(time.Hour)

	today := now.Format("2006-01-02")
	from := target.Add(-2 * time.Minute).Format("15:04")
	to := target.Add(2 * time.Minute).Format("15:04")

	reservations, err := s.reservations.FindBetweenTimes(context.Background(), today, from, to)
	if err != nil {
		log.Printf("reminders: load upcoming reservations: %v", err)
		return
	}

	for _, res := range reservations {
		if res.Schedule == nil {
			continue
		}
		timeText := startTimeText(res.Schedule)

		if res.Member != nil && res.Member.Account != nil {
			s.push.Notify(res.Member.Account.ID, "1시간 후 예약 알림",
				fmt.Sprintf("1시간 후 %s에 예약된 PT가 있습니다. 준비해주세요!", timeText))
		}
		if res.Schedule.Trainer != nil && res.Schedule.Trainer.Account != nil {
			memberName := "알 수 없음"
			if res.Member != nil && res.Member.Account != nil {
				memberName = res.Member.Account.Name
			}
			s.push.Notify(res.Schedule.Trainer.Account.ID, "트레이너 알림",
				fmt.Sprintf("회원 %s님의 PT가 %s에 시작됩니다.", memberName, timeText))
		}
	}
}

func startTimeText(schedule *models.Schedule) string {
	if len(schedule.StartTime) >= 5 {
		return schedule.StartTime[:5]
	}
	return schedule.StartTime
}
