// Package sqlite provides a SQLite-backed storage implementation.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/quietloop/attune/internal/alert"
	"github.com/quietloop/attune/internal/behavior"
	"github.com/quietloop/attune/internal/emotion"
	"github.com/quietloop/attune/internal/milestone"
	sqlitemigrate "github.com/quietloop/attune/internal/platform/storage/sqlitemigrate"
	"github.com/quietloop/attune/internal/profile"
	"github.com/quietloop/attune/internal/scoring"
	"github.com/quietloop/attune/internal/storage"
	"github.com/quietloop/attune/internal/storage/sqlite/migrations"
)

// Store persists attune state in SQLite.
type Store struct {
	sqlDB *sql.DB
}

var _ storage.Store = (*Store)(nil)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) ready() error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

func encodeStrings(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("encode string list: %w", err)
	}
	return string(raw), nil
}

func decodeStrings(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, fmt.Errorf("decode string list: %w", err)
	}
	if len(values) == 0 {
		return nil, nil
	}
	return values, nil
}

// CreateProfile inserts one child profile.
func (s *Store) CreateProfile(ctx context.Context, child profile.ChildProfile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(child.ID) == "" {
		return fmt.Errorf("child id is required")
	}

	interests, err := encodeStrings(child.Interests)
	if err != nil {
		return err
	}
	triggers, err := encodeStrings(child.Triggers)
	if err != nil {
		return err
	}
	strategies, err := encodeStrings(child.CalmingStrategies)
	if err != nil {
		return err
	}

	_, err = s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO child_profiles (
		   child_id, name, age, support_level,
		   auditory, visual, tactile, vestibular, proprioceptive,
		   interests, triggers, calming_strategies,
		   created_at, updated_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		child.ID,
		child.Name,
		child.Age,
		int(child.SupportLevel),
		child.Sensitivity.Auditory,
		child.Sensitivity.Visual,
		child.Sensitivity.Tactile,
		child.Sensitivity.Vestibular,
		child.Sensitivity.Proprioceptive,
		interests,
		triggers,
		strategies,
		toMillis(child.CreatedAt),
		toMillis(child.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("create profile: %w", err)
	}
	return nil
}

// GetProfile returns one child profile by id.
func (s *Store) GetProfile(ctx context.Context, childID string) (profile.ChildProfile, error) {
	if err := ctx.Err(); err != nil {
		return profile.ChildProfile{}, err
	}
	if err := s.ready(); err != nil {
		return profile.ChildProfile{}, err
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT child_id, name, age, support_level,
		        auditory, visual, tactile, vestibular, proprioceptive,
		        interests, triggers, calming_strategies,
		        created_at, updated_at
		   FROM child_profiles
		  WHERE child_id = ?`,
		childID,
	)
	return scanProfile(row.Scan)
}

func scanProfile(scan func(dest ...any) error) (profile.ChildProfile, error) {
	var child profile.ChildProfile
	var supportLevel int
	var interests, triggers, strategies string
	var createdAt, updatedAt int64
	err := scan(
		&child.ID,
		&child.Name,
		&child.Age,
		&supportLevel,
		&child.Sensitivity.Auditory,
		&child.Sensitivity.Visual,
		&child.Sensitivity.Tactile,
		&child.Sensitivity.Vestibular,
		&child.Sensitivity.Proprioceptive,
		&interests,
		&triggers,
		&strategies,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return profile.ChildProfile{}, storage.ErrNotFound
		}
		return profile.ChildProfile{}, fmt.Errorf("get profile: %w", err)
	}

	child.SupportLevel = profile.SupportLevel(supportLevel)
	if child.Interests, err = decodeStrings(interests); err != nil {
		return profile.ChildProfile{}, err
	}
	if child.Triggers, err = decodeStrings(triggers); err != nil {
		return profile.ChildProfile{}, err
	}
	if child.CalmingStrategies, err = decodeStrings(strategies); err != nil {
		return profile.ChildProfile{}, err
	}
	child.CreatedAt = fromMillis(createdAt)
	child.UpdatedAt = fromMillis(updatedAt)
	return child, nil
}

// UpdateProfile rewrites one child profile.
func (s *Store) UpdateProfile(ctx context.Context, child profile.ChildProfile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}

	interests, err := encodeStrings(child.Interests)
	if err != nil {
		return err
	}
	triggers, err := encodeStrings(child.Triggers)
	if err != nil {
		return err
	}
	strategies, err := encodeStrings(child.CalmingStrategies)
	if err != nil {
		return err
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE child_profiles
		    SET name = ?, age = ?, support_level = ?,
		        auditory = ?, visual = ?, tactile = ?, vestibular = ?, proprioceptive = ?,
		        interests = ?, triggers = ?, calming_strategies = ?,
		        updated_at = ?
		  WHERE child_id = ?`,
		child.Name,
		child.Age,
		int(child.SupportLevel),
		child.Sensitivity.Auditory,
		child.Sensitivity.Visual,
		child.Sensitivity.Tactile,
		child.Sensitivity.Vestibular,
		child.Sensitivity.Proprioceptive,
		interests,
		triggers,
		strategies,
		toMillis(child.UpdatedAt),
		child.ID,
	)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListProfiles returns every child profile ordered by name.
func (s *Store) ListProfiles(ctx context.Context) ([]profile.ChildProfile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT child_id, name, age, support_level,
		        auditory, visual, tactile, vestibular, proprioceptive,
		        interests, triggers, calming_strategies,
		        created_at, updated_at
		   FROM child_profiles
		  ORDER BY name ASC, child_id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []profile.ChildProfile
	for rows.Next() {
		child, err := scanProfile(rows.Scan)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, child)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	return profiles, nil
}

// CreateSession inserts one session record.
func (s *Store) CreateSession(ctx context.Context, record storage.SessionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(record.ID) == "" {
		return fmt.Errorf("session id is required")
	}
	if strings.TrimSpace(record.ChildID) == "" {
		return fmt.Errorf("child id is required")
	}

	var endedAt int64
	if record.Ended() {
		endedAt = toMillis(record.EndedAt)
	}
	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO sessions (session_id, child_id, started_at, ended_at, report_json)
		 VALUES (?, ?, ?, ?, ?)`,
		record.ID,
		record.ChildID,
		toMillis(record.StartedAt),
		endedAt,
		record.ReportJSON,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// GetSession returns one session record by id.
func (s *Store) GetSession(ctx context.Context, sessionID string) (storage.SessionRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.SessionRecord{}, err
	}
	if err := s.ready(); err != nil {
		return storage.SessionRecord{}, err
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT session_id, child_id, started_at, ended_at, report_json
		   FROM sessions
		  WHERE session_id = ?`,
		sessionID,
	)
	return scanSession(row.Scan)
}

func scanSession(scan func(dest ...any) error) (storage.SessionRecord, error) {
	var record storage.SessionRecord
	var startedAt, endedAt int64
	err := scan(&record.ID, &record.ChildID, &startedAt, &endedAt, &record.ReportJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.SessionRecord{}, storage.ErrNotFound
		}
		return storage.SessionRecord{}, fmt.Errorf("get session: %w", err)
	}
	record.StartedAt = fromMillis(startedAt)
	if endedAt != 0 {
		record.EndedAt = fromMillis(endedAt)
	}
	return record, nil
}

// EndSession closes a session and stores its final report.
func (s *Store) EndSession(ctx context.Context, sessionID string, endedAt time.Time, reportJSON []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE sessions SET ended_at = ?, report_json = ? WHERE session_id = ? AND ended_at = 0`,
		toMillis(endedAt),
		reportJSON,
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListSessionsByChild returns the child's sessions started within [from, to],
// oldest first.
func (s *Store) ListSessionsByChild(ctx context.Context, childID string, from, to time.Time) ([]storage.SessionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT session_id, child_id, started_at, ended_at, report_json
		   FROM sessions
		  WHERE child_id = ? AND started_at >= ? AND started_at <= ?
		  ORDER BY started_at ASC`,
		childID,
		toMillis(from),
		toMillis(to),
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var records []storage.SessionRecord
	for rows.Next() {
		record, err := scanSession(rows.Scan)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return records, nil
}

// AppendMetricSamples appends telemetry samples for a session.
func (s *Store) AppendMetricSamples(ctx context.Context, sessionID string, samples []scoring.MetricSample) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if len(samples) == 0 {
		return nil
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append metric samples: %w", err)
	}
	for _, sample := range samples {
		_, err := tx.ExecContext(
			ctx,
			`INSERT INTO metric_samples (
			   session_id, timestamp, actions_per_minute, error_rate,
			   pause_frequency, avg_response_time, progress_rate
			 ) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			sessionID,
			toMillis(sample.Timestamp),
			sample.ActionsPerMinute,
			sample.ErrorRate,
			sample.PauseFrequency,
			sample.AvgResponseTime,
			sample.ProgressRate,
		)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("append metric samples: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append metric samples: %w", err)
	}
	return nil
}

// MetricSamplesByRange returns a session's samples within [from, to], oldest
// first.
func (s *Store) MetricSamplesByRange(ctx context.Context, sessionID string, from, to time.Time) ([]scoring.MetricSample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT timestamp, actions_per_minute, error_rate,
		        pause_frequency, avg_response_time, progress_rate
		   FROM metric_samples
		  WHERE session_id = ? AND timestamp >= ? AND timestamp <= ?
		  ORDER BY timestamp ASC, id ASC`,
		sessionID,
		toMillis(from),
		toMillis(to),
	)
	if err != nil {
		return nil, fmt.Errorf("query metric samples: %w", err)
	}
	defer rows.Close()

	var samples []scoring.MetricSample
	for rows.Next() {
		var sample scoring.MetricSample
		var timestamp int64
		if err := rows.Scan(
			&timestamp,
			&sample.ActionsPerMinute,
			&sample.ErrorRate,
			&sample.PauseFrequency,
			&sample.AvgResponseTime,
			&sample.ProgressRate,
		); err != nil {
			return nil, fmt.Errorf("query metric samples: %w", err)
		}
		sample.Timestamp = fromMillis(timestamp)
		samples = append(samples, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query metric samples: %w", err)
	}
	return samples, nil
}

// AppendObservations appends behavioral observations for a child.
func (s *Store) AppendObservations(ctx context.Context, childID string, observations []behavior.Observation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if len(observations) == 0 {
		return nil
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append observations: %w", err)
	}
	for _, observation := range observations {
		contextJSON, err := encodeContext(observation.Context)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		_, err = tx.ExecContext(
			ctx,
			`INSERT INTO behavioral_observations (
			   child_id, timestamp, category, intensity, duration_ms,
			   trigger_name, intervention, context_json
			 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			childID,
			toMillis(observation.Timestamp),
			int(observation.Category),
			observation.Intensity,
			observation.Duration.Milliseconds(),
			observation.Trigger,
			observation.Intervention,
			contextJSON,
		)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("append observations: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append observations: %w", err)
	}
	return nil
}

func encodeContext(values map[string]string) (string, error) {
	if values == nil {
		values = map[string]string{}
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("encode observation context: %w", err)
	}
	return string(raw), nil
}

// ObservationsByRange returns a child's observations within [from, to],
// oldest first.
func (s *Store) ObservationsByRange(ctx context.Context, childID string, from, to time.Time) ([]behavior.Observation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT timestamp, category, intensity, duration_ms,
		        trigger_name, intervention, context_json
		   FROM behavioral_observations
		  WHERE child_id = ? AND timestamp >= ? AND timestamp <= ?
		  ORDER BY timestamp ASC, id ASC`,
		childID,
		toMillis(from),
		toMillis(to),
	)
	if err != nil {
		return nil, fmt.Errorf("query observations: %w", err)
	}
	defer rows.Close()

	var observations []behavior.Observation
	for rows.Next() {
		var observation behavior.Observation
		var timestamp, durationMillis int64
		var category int
		var contextJSON string
		if err := rows.Scan(
			&timestamp,
			&category,
			&observation.Intensity,
			&durationMillis,
			&observation.Trigger,
			&observation.Intervention,
			&contextJSON,
		); err != nil {
			return nil, fmt.Errorf("query observations: %w", err)
		}
		observation.Timestamp = fromMillis(timestamp)
		observation.Category = behavior.Category(category)
		observation.Duration = time.Duration(durationMillis) * time.Millisecond
		if contextJSON != "" && contextJSON != "{}" {
			if err := json.Unmarshal([]byte(contextJSON), &observation.Context); err != nil {
				return nil, fmt.Errorf("decode observation context: %w", err)
			}
		}
		observations = append(observations, observation)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query observations: %w", err)
	}
	return observations, nil
}

// ListObservations returns a page of a child's observations ordered by
// storage sequence, oldest first.
func (s *Store) ListObservations(ctx context.Context, childID string, query storage.ObservationQuery) ([]storage.ObservationEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	if query.Limit <= 0 {
		return nil, nil
	}

	sql := `SELECT id, timestamp, category, intensity, duration_ms,
	               trigger_name, intervention, context_json
	          FROM behavioral_observations
	         WHERE child_id = ? AND id > ?`
	args := []any{childID, query.AfterSeq}
	if query.Category != behavior.CategoryUnspecified {
		sql += ` AND category = ?`
		args = append(args, int(query.Category))
	}
	sql += ` ORDER BY id ASC LIMIT ?`
	args = append(args, query.Limit)

	rows, err := s.sqlDB.QueryContext(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list observations: %w", err)
	}
	defer rows.Close()

	var entries []storage.ObservationEntry
	for rows.Next() {
		var entry storage.ObservationEntry
		var timestamp, durationMillis int64
		var category int
		var contextJSON string
		if err := rows.Scan(
			&entry.Seq,
			&timestamp,
			&category,
			&entry.Observation.Intensity,
			&durationMillis,
			&entry.Observation.Trigger,
			&entry.Observation.Intervention,
			&contextJSON,
		); err != nil {
			return nil, fmt.Errorf("list observations: %w", err)
		}
		entry.Observation.Timestamp = fromMillis(timestamp)
		entry.Observation.Category = behavior.Category(category)
		entry.Observation.Duration = time.Duration(durationMillis) * time.Millisecond
		if contextJSON != "" && contextJSON != "{}" {
			if err := json.Unmarshal([]byte(contextJSON), &entry.Observation.Context); err != nil {
				return nil, fmt.Errorf("decode observation context: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list observations: %w", err)
	}
	return entries, nil
}

// AppendTransitions appends emotional transitions for a child.
func (s *Store) AppendTransitions(ctx context.Context, childID string, transitions []emotion.Transition) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if len(transitions) == 0 {
		return nil
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append transitions: %w", err)
	}
	for _, transition := range transitions {
		supportNeeded := 0
		if transition.SupportNeeded {
			supportNeeded = 1
		}
		_, err := tx.ExecContext(
			ctx,
			`INSERT INTO emotional_transitions (
			   child_id, timestamp, from_state, to_state, trigger_event,
			   duration_ms, support_needed, strategy
			 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			childID,
			toMillis(transition.Timestamp),
			int(transition.From),
			int(transition.To),
			transition.TriggerEvent,
			transition.Duration.Milliseconds(),
			supportNeeded,
			transition.Strategy,
		)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("append transitions: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append transitions: %w", err)
	}
	return nil
}

// TransitionsByRange returns a child's transitions within [from, to], oldest
// first.
func (s *Store) TransitionsByRange(ctx context.Context, childID string, from, to time.Time) ([]emotion.Transition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT timestamp, from_state, to_state, trigger_event,
		        duration_ms, support_needed, strategy
		   FROM emotional_transitions
		  WHERE child_id = ? AND timestamp >= ? AND timestamp <= ?
		  ORDER BY timestamp ASC, id ASC`,
		childID,
		toMillis(from),
		toMillis(to),
	)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	var transitions []emotion.Transition
	for rows.Next() {
		var transition emotion.Transition
		var timestamp, durationMillis int64
		var fromState, toState, supportNeeded int
		if err := rows.Scan(
			&timestamp,
			&fromState,
			&toState,
			&transition.TriggerEvent,
			&durationMillis,
			&supportNeeded,
			&transition.Strategy,
		); err != nil {
			return nil, fmt.Errorf("query transitions: %w", err)
		}
		transition.Timestamp = fromMillis(timestamp)
		transition.From = emotion.State(fromState)
		transition.To = emotion.State(toState)
		transition.Duration = time.Duration(durationMillis) * time.Millisecond
		transition.SupportNeeded = supportNeeded != 0
		transitions = append(transitions, transition)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	return transitions, nil
}

// AppendAssessments appends skill assessments for a child.
func (s *Store) AppendAssessments(ctx context.Context, childID string, assessments []storage.SkillAssessment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if len(assessments) == 0 {
		return nil
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append assessments: %w", err)
	}
	for _, assessment := range assessments {
		_, err := tx.ExecContext(
			ctx,
			`INSERT INTO skill_assessments (
			   child_id, timestamp, skill, category, baseline_score,
			   current_score, target_score, method, notes
			 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			childID,
			toMillis(assessment.Timestamp),
			assessment.Skill,
			assessment.Category,
			assessment.Baseline,
			assessment.Current,
			assessment.Target,
			assessment.Method,
			assessment.Notes,
		)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("append assessments: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append assessments: %w", err)
	}
	return nil
}

// AssessmentsByRange returns a child's assessments within [from, to], oldest
// first.
func (s *Store) AssessmentsByRange(ctx context.Context, childID string, from, to time.Time) ([]storage.SkillAssessment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT timestamp, skill, category, baseline_score, current_score, target_score, method, notes
		   FROM skill_assessments
		  WHERE child_id = ? AND timestamp >= ? AND timestamp <= ?
		  ORDER BY timestamp ASC, id ASC`,
		childID,
		toMillis(from),
		toMillis(to),
	)
	if err != nil {
		return nil, fmt.Errorf("query assessments: %w", err)
	}
	defer rows.Close()

	var assessments []storage.SkillAssessment
	for rows.Next() {
		var assessment storage.SkillAssessment
		var timestamp int64
		if err := rows.Scan(
			&timestamp,
			&assessment.Skill,
			&assessment.Category,
			&assessment.Baseline,
			&assessment.Current,
			&assessment.Target,
			&assessment.Method,
			&assessment.Notes,
		); err != nil {
			return nil, fmt.Errorf("query assessments: %w", err)
		}
		assessment.Timestamp = fromMillis(timestamp)
		assessments = append(assessments, assessment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query assessments: %w", err)
	}
	return assessments, nil
}

// LatestSkillLevels returns the most recent normalized level per skill.
func (s *Store) LatestSkillLevels(ctx context.Context, childID string) (map[string]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT skill, current_score, target_score
		   FROM skill_assessments
		  WHERE child_id = ?
		  ORDER BY timestamp ASC, id ASC`,
		childID,
	)
	if err != nil {
		return nil, fmt.Errorf("query skill levels: %w", err)
	}
	defer rows.Close()

	levels := make(map[string]float64)
	for rows.Next() {
		var assessment storage.SkillAssessment
		if err := rows.Scan(&assessment.Skill, &assessment.Current, &assessment.Target); err != nil {
			return nil, fmt.Errorf("query skill levels: %w", err)
		}
		// Later rows overwrite earlier ones.
		levels[assessment.Skill] = assessment.Level()
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query skill levels: %w", err)
	}
	return levels, nil
}

// AppendAchievement records one awarded milestone.
func (s *Store) AppendAchievement(ctx context.Context, childID string, achievement milestone.Achievement) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}

	evidenceJSON, err := encodeStrings(achievement.EvidenceSummaries)
	if err != nil {
		return err
	}
	_, err = s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO milestone_achievements (
		   child_id, milestone_id, confidence, significance,
		   achieved_at, evidence_json, next_milestone_id
		 ) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		childID,
		achievement.MilestoneID,
		achievement.Confidence,
		achievement.Significance,
		toMillis(achievement.AchievedAt),
		evidenceJSON,
		achievement.NextMilestoneID,
	)
	if err != nil {
		return fmt.Errorf("append achievement: %w", err)
	}
	return nil
}

// AchievementsByChild returns a child's awards, oldest first.
func (s *Store) AchievementsByChild(ctx context.Context, childID string) ([]milestone.Achievement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT milestone_id, confidence, significance, achieved_at,
		        evidence_json, next_milestone_id
		   FROM milestone_achievements
		  WHERE child_id = ?
		  ORDER BY achieved_at ASC, id ASC`,
		childID,
	)
	if err != nil {
		return nil, fmt.Errorf("query achievements: %w", err)
	}
	defer rows.Close()

	var achievements []milestone.Achievement
	for rows.Next() {
		var achievement milestone.Achievement
		var achievedAt int64
		var evidenceJSON string
		if err := rows.Scan(
			&achievement.MilestoneID,
			&achievement.Confidence,
			&achievement.Significance,
			&achievedAt,
			&evidenceJSON,
			&achievement.NextMilestoneID,
		); err != nil {
			return nil, fmt.Errorf("query achievements: %w", err)
		}
		achievement.AchievedAt = fromMillis(achievedAt)
		if achievement.EvidenceSummaries, err = decodeStrings(evidenceJSON); err != nil {
			return nil, err
		}
		achievements = append(achievements, achievement)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query achievements: %w", err)
	}
	return achievements, nil
}

// LatestAwards returns the most recent award time per milestone id.
func (s *Store) LatestAwards(ctx context.Context, childID string) (map[string]time.Time, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT milestone_id, MAX(achieved_at)
		   FROM milestone_achievements
		  WHERE child_id = ?
		  GROUP BY milestone_id`,
		childID,
	)
	if err != nil {
		return nil, fmt.Errorf("query latest awards: %w", err)
	}
	defer rows.Close()

	awards := make(map[string]time.Time)
	for rows.Next() {
		var milestoneID string
		var achievedAt int64
		if err := rows.Scan(&milestoneID, &achievedAt); err != nil {
			return nil, fmt.Errorf("query latest awards: %w", err)
		}
		awards[milestoneID] = fromMillis(achievedAt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query latest awards: %w", err)
	}
	return awards, nil
}

// AppendAlert records one derived alert.
func (s *Store) AppendAlert(ctx context.Context, childID string, record alert.Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}

	var resolvedAt int64
	if record.Resolved() {
		resolvedAt = toMillis(record.ResolvedAt)
	}
	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO alerts (
		   alert_id, child_id, session_id, severity, message, created_at, resolved_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		childID,
		record.SessionID,
		int(record.Severity),
		record.Message,
		toMillis(record.CreatedAt),
		resolvedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("append alert: %w", err)
	}
	return nil
}

// AlertsBySession returns a session's alerts, oldest first.
func (s *Store) AlertsBySession(ctx context.Context, sessionID string) ([]alert.Alert, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT alert_id, session_id, severity, message, created_at, resolved_at
		   FROM alerts
		  WHERE session_id = ?
		  ORDER BY created_at ASC, alert_id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []alert.Alert
	for rows.Next() {
		var record alert.Alert
		var severity int
		var createdAt, resolvedAt int64
		if err := rows.Scan(
			&record.ID,
			&record.SessionID,
			&severity,
			&record.Message,
			&createdAt,
			&resolvedAt,
		); err != nil {
			return nil, fmt.Errorf("query alerts: %w", err)
		}
		record.Severity = alert.Severity(severity)
		record.CreatedAt = fromMillis(createdAt)
		if resolvedAt != 0 {
			record.ResolvedAt = fromMillis(resolvedAt)
		}
		alerts = append(alerts, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	return alerts, nil
}
