package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/soaringjerry/questionflow/internal/api"
	"github.com/soaringjerry/questionflow/internal/models"
)

// SQLStore persists questionnaire state in SQLite or PostgreSQL.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

var _ api.Store = (*SQLStore)(nil)

func NewSQLStore(db *sql.DB, d Dialect) (*SQLStore, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	if d == DialectSQLite {
		pragmas := []string{
			"PRAGMA foreign_keys = ON",
			"PRAGMA journal_mode = WAL",
			"PRAGMA synchronous = NORMAL",
		}
		for _, stmt := range pragmas {
			if _, err := db.Exec(stmt); err != nil {
				return nil, fmt.Errorf("apply sqlite pragma %q: %w", stmt, err)
			}
		}
	}
	return &SQLStore{db: db, dialect: d}, nil
}

func NewStore(db *sql.DB, d Dialect) (api.Store, error) {
	return NewSQLStore(db, d)
}

func (s *SQLStore) logErr(prefix string, err error) {
	if err != nil {
		log.Printf("%s store: %s: %v", s.dialect, prefix, err)
	}
}

func (s *SQLStore) q(query string) string { return s.dialect.rebind(query) }

// inTx runs fn in a transaction, committing when it returns nil.
func (s *SQLStore) inTx(ctx context.Context, name string, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.logErr(name+" begin", err)
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
			if err != nil {
				s.logErr(name+" commit", err)
			}
		}
	}()
	return fn(tx)
}

func (s *SQLStore) ReplaceQuestions(ctx context.Context, qs []*models.Question) error {
	return s.inTx(ctx, "ReplaceQuestions", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM questions"); err != nil {
			s.logErr("ReplaceQuestions delete", err)
			return err
		}
		stmt := s.q(`INSERT INTO questions (id, position, text, type, required, options, correct_answer, next_question_mapping, validation_rules, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		for _, q := range qs {
			if q == nil {
				continue
			}
			options, err := encodeJSON(q.Options)
			if err != nil {
				return fmt.Errorf("encode options of %s: %w", q.ID, err)
			}
			mapping, err := encodeJSON(q.NextQuestionMapping)
			if err != nil {
				return fmt.Errorf("encode mapping of %s: %w", q.ID, err)
			}
			if _, err := tx.ExecContext(ctx, stmt,
				q.ID, q.Position, q.Text, q.Type, boolToInt64(q.Required), options,
				rawToNull(q.CorrectAnswer), mapping.String, rawToNull(q.ValidationRules), formatTime(q.CreatedAt),
			); err != nil {
				s.logErr("ReplaceQuestions insert", err)
				return err
			}
		}
		return nil
	})
}

func (s *SQLStore) ListQuestions(ctx context.Context) ([]*models.Question, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, position, text, type, required, options, correct_answer, next_question_mapping, validation_rules, created_at
FROM questions ORDER BY position ASC, id ASC`)
	if err != nil {
		s.logErr("ListQuestions", err)
		return nil, err
	}
	defer rows.Close()
	var out []*models.Question
	for rows.Next() {
		var (
			q                       models.Question
			required                int64
			options, correct, rules sql.NullString
			mapping, createdAt      string
		)
		if err := rows.Scan(&q.ID, &q.Position, &q.Text, &q.Type, &required, &options, &correct, &mapping, &rules, &createdAt); err != nil {
			s.logErr("ListQuestions scan", err)
			return nil, err
		}
		q.Required = int64ToBool(required)
		q.Options = decodeStringSlice(options)
		q.CorrectAnswer = nullToRaw(correct)
		q.ValidationRules = nullToRaw(rules)
		q.NextQuestionMapping = decodeStringMap(sql.NullString{String: mapping, Valid: true})
		q.CreatedAt = parseTime(createdAt)
		out = append(out, &q)
	}
	return out, rows.Err()
}

func (s *SQLStore) CountQuestions(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM questions").Scan(&n); err != nil {
		s.logErr("CountQuestions", err)
		return 0, err
	}
	return n, nil
}

func (s *SQLStore) AddUser(ctx context.Context, u *models.User) error {
	_, err := s.db.ExecContext(ctx, s.q("INSERT INTO users (id, email, name, pass_hash, created_at, last_login) VALUES (?, ?, ?, ?, ?, ?)"),
		u.ID, strings.ToLower(u.Email), u.Name, string(u.PassHash), formatTime(u.CreatedAt), timeToNull(u.LastLogin))
	if isUniqueViolation(err) {
		return api.ErrDuplicate
	}
	s.logErr("AddUser", err)
	return err
}

const userColumns = "id, email, name, pass_hash, created_at, last_login"

func scanUser(row *sql.Row) (*models.User, error) {
	var (
		u         models.User
		hash      string
		createdAt string
		lastLogin sql.NullString
	)
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &hash, &createdAt, &lastLogin); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	u.PassHash = []byte(hash)
	u.CreatedAt = parseTime(createdAt)
	if lastLogin.Valid {
		t := parseTime(lastLogin.String)
		u.LastLogin = &t
	}
	return &u, nil
}

func (s *SQLStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, s.q("SELECT "+userColumns+" FROM users WHERE id = ?"), id))
	s.logErr("GetUser", err)
	return u, err
}

func (s *SQLStore) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, s.q("SELECT "+userColumns+" FROM users WHERE email = ?"), strings.ToLower(email)))
	s.logErr("FindUserByEmail", err)
	return u, err
}

func (s *SQLStore) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, s.q("UPDATE users SET last_login = ? WHERE id = ?"), formatTime(at), id)
	s.logErr("TouchLastLogin", err)
	return err
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLStore) GetProgress(ctx context.Context, userID string) (*models.Progress, error) {
	p, err := s.getProgress(ctx, s.db, userID)
	s.logErr("GetProgress", err)
	return p, err
}

func (s *SQLStore) getProgress(ctx context.Context, q queryer, userID string) (*models.Progress, error) {
	var (
		p                     models.Progress
		current               sql.NullString
		completed, path       string
		startTime, lastActive string
		isCompleted           int64
	)
	err := q.QueryRowContext(ctx, s.q(`SELECT id, user_id, current_question_id, completed_questions, question_path, start_time, last_activity, is_completed
FROM user_progress WHERE user_id = ?`), userID).Scan(&p.ID, &p.UserID, &current, &completed, &path, &startTime, &lastActive, &isCompleted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if current.Valid && current.String != "" {
		id := current.String
		p.CurrentQuestionID = &id
	}
	p.CompletedQuestions = decodeStringSlice(sql.NullString{String: completed, Valid: true})
	p.QuestionPath = decodeStringSlice(sql.NullString{String: path, Valid: true})
	p.StartTime = parseTime(startTime)
	p.LastActivity = parseTime(lastActive)
	p.IsCompleted = int64ToBool(isCompleted)
	return &p, nil
}

func (s *SQLStore) ListAnswers(ctx context.Context, userID string) ([]*models.Answer, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT id, user_id, question_id, answer_value, is_correct, answered_at, sequence_number
FROM user_answers WHERE user_id = ? ORDER BY sequence_number ASC, question_id ASC`), userID)
	if err != nil {
		s.logErr("ListAnswers", err)
		return nil, err
	}
	defer rows.Close()
	out := []*models.Answer{}
	for rows.Next() {
		var (
			a          models.Answer
			value      string
			isCorrect  sql.NullInt64
			answeredAt string
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.QuestionID, &value, &isCorrect, &answeredAt, &a.SequenceNumber); err != nil {
			s.logErr("ListAnswers scan", err)
			return nil, err
		}
		a.Value = json.RawMessage(value)
		if isCorrect.Valid {
			v := int64ToBool(isCorrect.Int64)
			a.IsCorrect = &v
		}
		a.Timestamp = parseTime(answeredAt)
		out = append(out, &a)
	}
	return out, rows.Err()
}

// WithUserTx locks the user's row for the duration of fn. On SQLite the
// connection's immediate transactions provide the same exclusion.
func (s *SQLStore) WithUserTx(ctx context.Context, userID string, fn func(tx api.UserTx) error) error {
	return s.inTx(ctx, "WithUserTx", func(tx *sql.Tx) error {
		var id string
		err := tx.QueryRowContext(ctx, s.q("SELECT id FROM users WHERE id = ?")+s.dialect.lockUser(), userID).Scan(&id)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			s.logErr("WithUserTx lock", err)
			return err
		}
		return fn(&sqlUserTx{ctx: ctx, tx: tx, store: s, userID: userID})
	})
}

type sqlUserTx struct {
	ctx    context.Context
	tx     *sql.Tx
	store  *SQLStore
	userID string
}

func (t *sqlUserTx) GetProgress() (*models.Progress, error) {
	return t.store.getProgress(t.ctx, t.tx, t.userID)
}

// SaveProgress inserts the record or updates the existing one in place, keeping its ID.
func (t *sqlUserTx) SaveProgress(p *models.Progress) error {
	completed, err := encodeJSON(nonNil(p.CompletedQuestions))
	if err != nil {
		return err
	}
	path, err := encodeJSON(nonNil(p.QuestionPath))
	if err != nil {
		return err
	}
	var current sql.NullString
	if p.CurrentQuestionID != nil && *p.CurrentQuestionID != "" {
		current = sql.NullString{String: *p.CurrentQuestionID, Valid: true}
	}
	_, err = t.tx.ExecContext(t.ctx, t.store.q(`INSERT INTO user_progress (id, user_id, current_question_id, completed_questions, question_path, start_time, last_activity, is_completed)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (user_id) DO UPDATE SET
    current_question_id = excluded.current_question_id,
    completed_questions = excluded.completed_questions,
    question_path = excluded.question_path,
    start_time = excluded.start_time,
    last_activity = excluded.last_activity,
    is_completed = excluded.is_completed`),
		p.ID, t.userID, current, completed.String, path.String, formatTime(p.StartTime), formatTime(p.LastActivity), boolToInt64(p.IsCompleted))
	t.store.logErr("SaveProgress", err)
	return err
}

// UpsertAnswer keeps the ID of an existing answer to the same question.
func (t *sqlUserTx) UpsertAnswer(a *models.Answer) error {
	var isCorrect sql.NullInt64
	if a.IsCorrect != nil {
		isCorrect = sql.NullInt64{Int64: boolToInt64(*a.IsCorrect), Valid: true}
	}
	value := string(a.Value)
	if strings.TrimSpace(value) == "" {
		value = "null"
	}
	_, err := t.tx.ExecContext(t.ctx, t.store.q(`INSERT INTO user_answers (id, user_id, question_id, answer_value, is_correct, answered_at, sequence_number)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (user_id, question_id) DO UPDATE SET
    answer_value = excluded.answer_value,
    is_correct = excluded.is_correct,
    answered_at = excluded.answered_at,
    sequence_number = excluded.sequence_number`),
		a.ID, t.userID, a.QuestionID, value, isCorrect, formatTime(a.Timestamp), a.SequenceNumber)
	t.store.logErr("UpsertAnswer", err)
	return err
}

func (t *sqlUserTx) DeleteAnswers() error {
	_, err := t.tx.ExecContext(t.ctx, t.store.q("DELETE FROM user_answers WHERE user_id = ?"), t.userID)
	t.store.logErr("DeleteAnswers", err)
	return err
}

func boolToInt64(v bool) int64 {
	if v {
		return 1
	}
	return 0
}

func int64ToBool(v int64) bool { return v != 0 }

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if strings.TrimSpace(s) == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		log.Printf("sql store: parse time %q: %v", s, err)
		return time.Time{}
	}
	return t
}

func timeToNull(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func rawToNull(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}

func nullToRaw(ns sql.NullString) json.RawMessage {
	if !ns.Valid || strings.TrimSpace(ns.String) == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

func encodeJSON(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func decodeStringMap(ns sql.NullString) map[string]string {
	if !ns.Valid || strings.TrimSpace(ns.String) == "" {
		return map[string]string{}
	}
	var out map[string]string
	if err := json.Unmarshal([]byte(ns.String), &out); err != nil {
		log.Printf("sql store: decode string map: %v", err)
		return map[string]string{}
	}
	return out
}

func decodeStringSlice(ns sql.NullString) []string {
	if !ns.Valid || strings.TrimSpace(ns.String) == "" {
		return []string{}
	}
	var out []string
	if err := json.Unmarshal([]byte(ns.String), &out); err != nil {
		log.Printf("sql store: decode string slice: %v", err)
		return []string{}
	}
	if out == nil {
		return []string{}
	}
	return out
}
