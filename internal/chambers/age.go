package chambers

import (
	"os"
	"path/filepath"
	"regexp"
	"time"
)

// Filename-embedded dates take the form YYYY-MM-DD anywhere in the base
// name, e.g. "2026-08-12-voice-listener.md".
var filenameDate = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})`)

// unitAge determines how old a unit is: filename date first, then file
// modification time, then the undated sentinel. An undatable unit is
// maximally old rather than an error.
func (e *Engine) unitAge(path string, now time.Time) time.Duration {
	if m := filenameDate.FindString(filepath.Base(path)); m != "" {
		if t, err := time.ParseInLocation("2006-01-02", m, time.Local); err == nil {
			age := now.Sub(t)
			if age < 0 {
				return 0
			}
			return age
		}
	}

	if info, err := os.Stat(e.abs(path)); err == nil {
		age := now.Sub(info.ModTime())
		if age < 0 {
			return 0
		}
		return age
	}

	return time.Duration(e.cfg.UndatedAgeDays) * 24 * time.Hour
}
