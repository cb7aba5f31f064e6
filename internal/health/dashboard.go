package health

import (
	"context"
	"time"

	"watchbook/internal/store"
)

// Level is the overall protection level.
type Level string

const (
	LevelProtected Level = "protected"
	LevelAttention Level = "attention"
	LevelAtRisk    Level = "at-risk"
)

// Dashboard is the derived protection status shown to the user.
type Dashboard struct {
	Level            Level          `json:"level"`
	Health           store.Health   `json:"health"`
	LastSave         time.Time      `json:"lastSave"`
	LastManualExport time.Time      `json:"lastManualExport"`
	DaysSinceExport  int            `json:"daysSinceExport"`
	ExportOverdue    bool           `json:"exportOverdue"`
	BackupCount      int            `json:"backupCount"`
	BackupsByKey     map[string]int `json:"backupsByKey"`
	CorruptKeys      []string       `json:"corruptKeys"`
	Recommendations  []string       `json:"recommendations"`
}

// Dashboard samples the store and assesses it.
func (m *Monitor) Dashboard(ctx context.Context) (Dashboard, error) {
	h := m.store.Health(ctx)
	byKey, err := m.store.Vault().CountByKey(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	last := m.hub.Snapshot().LastManualExport
	return Assess(h, last, byKey, m.store.CorruptKeys(), m.now(), m.config.ReminderAfter), nil
}

// Assess derives the dashboard. DaysSinceExport is -1 when no manual
// export was ever made.
func Assess(h store.Health, lastExport int64, byKey map[string]int, corrupt []string, now time.Time, reminderAfter time.Duration) Dashboard {
	overdue, days := exportDue(lastExport, now, reminderAfter)
	d := Dashboard{
		Health:          h,
		LastSave:        h.LastSave,
		DaysSinceExport: days,
		ExportOverdue:   overdue,
		BackupCount:     h.BackupCount,
		BackupsByKey:    byKey,
		CorruptKeys:     append([]string{}, corrupt...),
	}
	if lastExport > 0 {
		d.LastManualExport = time.UnixMilli(lastExport).UTC()
	}
	if d.BackupsByKey == nil {
		d.BackupsByKey = map[string]int{}
	}

	var rec []string
	switch h.Status {
	case store.StatusError:
		rec = append(rec, "Освободете място: експортирайте данните и изтрийте стари резервни копия.")
	case store.StatusWarning:
		rec = append(rec, "Хранилището се запълва. Помислете за експорт и почистване.")
	}
	if len(corrupt) > 0 {
		rec = append(rec, "Има повредени данни. Възстановете ги от резервно копие.")
	}
	if overdue {
		rec = append(rec, "Направете ръчен експорт на данните.")
	}
	if h.BackupCount == 0 {
		rec = append(rec, "Няма резервни копия. Запазете данни, за да се създаде първото.")
	}
	d.Recommendations = rec
	if d.Recommendations == nil {
		d.Recommendations = []string{}
	}

	switch {
	case h.Status == store.StatusError || len(corrupt) > 0:
		d.Level = LevelAtRisk
	case h.Status == store.StatusWarning || overdue || h.BackupCount == 0:
		d.Level = LevelAttention
	default:
		d.Level = LevelProtected
	}
	return d
}
