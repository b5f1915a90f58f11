package utils

import (
	"fmt"
	"time"

	"github.com/fitlink-app/fitlink-server/cmd/models"
)

// FormatChatTimestamp renders a message timestamp the way the room list shows
// it: clock time for today, "어제" for yesterday, a day count inside a week,
// month/day inside the year, full date otherwise. All in the display timezone.
func FormatChatTimestamp(t time.Time) string {
	return formatChatTimestampAt(t, time.Now())
}

func formatChatTimestampAt(t, now time.Time) string {
	target := t.In(models.Seoul)
	ref := now.In(models.Seoul)

	if sameDay(ref, target) {
		hour := target.Hour()
		ampm := "오전"
		if hour >= 12 {
			ampm = "오후"
		}
		display := hour % 12
		if display == 0 {
			display = 12
		}
		return fmt.Sprintf("%s %d:%02d", ampm, display, target.Minute())
	}

	days := int(ref.Sub(target).Hours() / 24)
	if days == 1 {
		return "어제"
	}
	if days < 7 {
		return fmt.Sprintf("%d일 전", days)
	}

	if ref.Year() == target.Year() {
		return fmt.Sprintf("%d월 %d일", int(target.Month()), target.Day())
	}
	return target.Format("2006.01.02")
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
