package store

import (
	"fmt"
	"time"

	"loungeskip/internal/models"
)

// RecordSkip appends one executed skip to the history.
func (s *Store) RecordSkip(ev *models.SkipEvent) error {
	res, err := s.db.Exec(`INSERT INTO skip_history (device_name, video_id, segment_start, segment_end, report_count, skipped_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ev.DeviceName, ev.VideoID, ev.SegmentStart, ev.SegmentEnd, ev.ReportCount, ev.SkippedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("inserting skip: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		ev.ID = id
	}
	return nil
}

// ListSkips returns the most recent skips, newest first.
func (s *Store) ListSkips(limit int) ([]models.SkipEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`SELECT id, device_name, video_id, segment_start, segment_end, report_count, skipped_at
		FROM skip_history ORDER BY skipped_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying skips: %w", err)
	}
	defer rows.Close()

	var out []models.SkipEvent
	for rows.Next() {
		var ev models.SkipEvent
		var skippedAt string
		if err := rows.Scan(&ev.ID, &ev.DeviceName, &ev.VideoID, &ev.SegmentStart, &ev.SegmentEnd, &ev.ReportCount, &skippedAt); err != nil {
			return nil, err
		}
		if t, err := parseSQLiteTime(skippedAt); err == nil {
			ev.SkippedAt = t
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// CountSkips returns the total number of recorded skips.
func (s *Store) CountSkips() (int64, error) {
	var n int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM skip_history`).Scan(&n)
	return n, err
}

// parseSQLiteTime handles the formats the driver and SQLite built-ins emit.
// Times without an explicit timezone are assumed UTC.
func parseSQLiteTime(s string) (time.Time, error) {
	for _, f := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05Z"} {
		if t, err := time.Parse(f, s); err == nil {
			return t.UTC(), nil
		}
	}
	for _, f := range []string{"2006-01-02 15:04:05.999999999", "2006-01-02T15:04:05.999999999"} {
		if t, err := time.ParseInLocation(f, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse time: %q", s)
}
