package models

import (
	"time"

	"gorm.io/gorm"
)

// SessionDuration is the fixed length of a PT session.
const SessionDuration = 50 * time.Minute

// Seoul is the display timezone for dates, cancellation windows and chat
// timestamps.
var Seoul = func() *time.Location {
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		return time.FixedZone("KST", 9*60*60)
	}
	return loc
}()

// Schedule is a bookable (trainer, date, start time) slot. Slots are created
// lazily by the first booking that targets them and are never deleted. Date is
/// "YYYY-MM-DD" and StartTime "HH:MM:SS"; both are compared lexically, which
// matches chronological order for these formats.
type Schedule struct {
	gorm.Model
	TrainerID uint   `gorm:"column:trainer_id;not null;uniqueIndex:idx_schedule_slot" json:"trainer_id"`
	Date      string `gorm:"column:date;size:10;not null;uniqueIndex:idx_schedule_slot" json:"date"`
	StartTime string `gorm:"column:start_time;size:8;not null;uniqueIndex:idx_schedule_slot" json:"start_time"`

	Trainer *Trainer `gorm:"foreignKey:TrainerID" json:"trainer,omitempty"`
}

func (Schedule) TableName() string {
	return "schedules"
}

// StartAt resolves the slot's wall-clock start in the display timezone.
func (s *Schedule) StartAt() (time.Time, error) {
	return time.ParseInLocation("2006-01-02 15:04:05", s.Date+" "+s.StartTime, Seoul)
}

// EndAt is StartAt plus the fixed session duration.
func (s *Schedule) EndAt() (time.Time, error) {
	start, err := s.StartAt()
	if err != nil {
		return time.Time{}, err
	}
	return start.Add(SessionDuration), nil
}
