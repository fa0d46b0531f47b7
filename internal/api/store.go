package api

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/soaringjerry/questionflow/internal/models"
)

type memoryStore struct {
	mu           sync.RWMutex
	questions    []*models.Question
	users        map[string]*models.User
	usersByEmail map[string]*models.User
	progress     map[string]*models.Progress
	answers      map[string]map[string]*models.Answer // user -> question -> answer

	locksMu   sync.Mutex
	userLocks map[string]*sync.Mutex
}

// NewMemoryStore returns a Store that keeps everything in process memory.
func NewMemoryStore() Store {
	return newMemoryStore()
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		users:        map[string]*models.User{},
		usersByEmail: map[string]*models.User{},
		progress:     map[string]*models.Progress{},
		answers:      map[string]map[string]*models.Answer{},
		userLocks:    map[string]*sync.Mutex{},
	}
}

func (s *memoryStore) ReplaceQuestions(_ context.Context, qs []*models.Question) error {
	out := make([]*models.Question, 0, len(qs))
	for _, q := range qs {
		if q != nil {
			out = append(out, cloneQuestion(q))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	s.mu.Lock()
	defer s.mu.Unlock()
	s.questions = out
	return nil
}

func (s *memoryStore) ListQuestions(_ context.Context) ([]*models.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Question, 0, len(s.questions))
	for _, q := range s.questions {
		out = append(out, cloneQuestion(q))
	}
	return out, nil
}

func (s *memoryStore) CountQuestions(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.questions), nil
}

func (s *memoryStore) AddUser(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(u.Email)
	if _, ok := s.usersByEmail[key]; ok {
		return ErrDuplicate
	}
	if _, ok := s.users[u.ID]; ok {
		return ErrDuplicate
	}
	cp := cloneUser(u)
	s.users[u.ID] = cp
	s.usersByEmail[key] = cp
	return nil
}

func (s *memoryStore) GetUser(_ context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[id]; ok {
		return cloneUser(u), nil
	}
	return nil, nil
}

func (s *memoryStore) FindUserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.usersByEmail[strings.ToLower(email)]; ok {
		return cloneUser(u), nil
	}
	return nil, nil
}

func (s *memoryStore) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		t := at
		u.LastLogin = &t
	}
	return nil
}

func (s *memoryStore) GetProgress(_ context.Context, userID string) (*models.Progress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneProgress(s.progress[userID]), nil
}

func (s *memoryStore) ListAnswers(_ context.Context, userID string) ([]*models.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Answer, 0, len(s.answers[userID]))
	for _, a := range s.answers[userID] {
		out = append(out, cloneAnswer(a))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SequenceNumber != out[j].SequenceNumber {
			return out[i].SequenceNumber < out[j].SequenceNumber
		}
		return out[i].QuestionID < out[j].QuestionID
	})
	return out, nil
}

func (s *memoryStore) userLock(userID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.userLocks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.userLocks[userID] = l
	}
	return l
}

func (s *memoryStore) WithUserTx(ctx context.Context, userID string, fn func(tx UserTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	s.mu.RLock()
	tx := &memoryTx{userID: userID, progress: cloneProgress(s.progress[userID]), answers: map[string]*models.Answer{}}
	for qid, a := range s.answers[userID] {
		tx.answers[qid] = cloneAnswer(a)
	}
	s.mu.RUnlock()

	if err := fn(tx); err != nil {
		return err
	}
	if !tx.dirty {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tx.progress != nil {
		s.progress[userID] = tx.progress
	}
	s.answers[userID] = tx.answers
	return nil
}

// memoryTx stages writes until WithUserTx commits them.
type memoryTx struct {
	userID   string
	progress *models.Progress
	answers  map[string]*models.Answer
	dirty    bool
}

func (tx *memoryTx) GetProgress() (*models.Progress, error) {
	return cloneProgress(tx.progress), nil
}

func (tx *memoryTx) SaveProgress(p *models.Progress) error {
	cp := cloneProgress(p)
	cp.UserID = tx.userID
	if tx.progress != nil {
		cp.ID = tx.progress.ID
	}
	tx.progress = cp
	tx.dirty = true
	return nil
}

func (tx *memoryTx) UpsertAnswer(a *models.Answer) error {
	cp := cloneAnswer(a)
	cp.UserID = tx.userID
	if existing, ok := tx.answers[a.QuestionID]; ok {
		cp.ID = existing.ID
	}
	tx.answers[a.QuestionID] = cp
	tx.dirty = true
	return nil
}

func (tx *memoryTx) DeleteAnswers() error {
	tx.answers = map[string]*models.Answer{}
	tx.dirty = true
	return nil
}

func cloneQuestion(q *models.Question) *models.Question {
	cp := *q
	cp.Options = append([]string(nil), q.Options...)
	cp.CorrectAnswer = append([]byte(nil), q.CorrectAnswer...)
	cp.ValidationRules = append([]byte(nil), q.ValidationRules...)
	cp.NextQuestionMapping = make(map[string]string, len(q.NextQuestionMapping))
	for k, v := range q.NextQuestionMapping {
		cp.NextQuestionMapping[k] = v
	}
	return &cp
}

func cloneUser(u *models.User) *models.User {
	cp := *u
	cp.PassHash = append([]byte(nil), u.PassHash...)
	if u.LastLogin != nil {
		t := *u.LastLogin
		cp.LastLogin = &t
	}
	return &cp
}

func cloneProgress(p *models.Progress) *models.Progress {
	if p == nil {
		return nil
	}
	cp := *p
	if p.CurrentQuestionID != nil {
		id := *p.CurrentQuestionID
		cp.CurrentQuestionID = &id
	}
	cp.CompletedQuestions = append([]string{}, p.CompletedQuestions...)
	cp.QuestionPath = append([]string{}, p.QuestionPath...)
	return &cp
}

func cloneAnswer(a *models.Answer) *models.Answer {
	cp := *a
	cp.Value = append([]byte(nil), a.Value...)
	if a.IsCorrect != nil {
		v := *a.IsCorrect
		cp.IsCorrect = &v
	}
	return &cp
}
