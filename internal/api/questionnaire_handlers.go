package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/soaringjerry/questionflow/internal/services"
)

// questionResponse hides the grading answer and the transition mapping.
type questionResponse struct {
	ID              string                    `json:"id"`
	Text            string                    `json:"text"`
	Type            services.QuestionType     `json:"type"`
	Required        bool                      `json:"required"`
	Options         []string                  `json:"options"`
	ValidationRules *services.ValidationRules `json:"validation_rules"`
}

type nextQuestionResponse struct {
	Question *questionResponse `json:"question"`
	IsLast   bool              `json:"is_last"`
}

func toQuestionResponse(q *services.Question) *questionResponse {
	if q == nil {
		return nil
	}
	return &questionResponse{
		ID:              q.ID,
		Text:            q.Text,
		Type:            q.Type,
		Required:        q.Required,
		Options:         q.Options,
		ValidationRules: q.ValidationRules,
	}
}

func toNextQuestionResponse(n *services.NextQuestion) nextQuestionResponse {
	return nextQuestionResponse{Question: toQuestionResponse(n.Question), IsLast: n.IsLast}
}

// answerPayload keeps answer_value as raw JSON so a missing field reads as null.
type answerPayload struct {
	QuestionID  string          `json:"question_id"`
	AnswerValue json.RawMessage `json:"answer_value"`
}

func (p answerPayload) value() (services.AnswerValue, error) {
	v, err := services.ParseAnswerJSON(p.AnswerValue)
	if err != nil {
		return services.AnswerValue{}, services.NewInvalidError("answer_value: " + err.Error())
	}
	return v, nil
}

// GET /api/questions/start
func (rt *Router) handleStart(w http.ResponseWriter, r *http.Request) {
	res, err := rt.questionnaire.Start(r.Context(), currentUserID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toQuestionResponse(res.Question))
}

// GET /api/questions/{question_id}
func (rt *Router) handleGetQuestion(w http.ResponseWriter, r *http.Request) {
	q, err := rt.questionnaire.GetQuestion(mux.Vars(r)["question_id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toQuestionResponse(q))
}

// POST /api/answers
func (rt *Router) handleSubmitAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerPayload
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.QuestionID == "" {
		writeError(w, r, services.NewInvalidError("question_id required"))
		return
	}
	v, err := req.value()
	if err != nil {
		writeError(w, r, err)
		return
	}
	next, err := rt.questionnaire.SubmitAnswer(r.Context(), currentUserID(r), req.QuestionID, v)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toNextQuestionResponse(next))
}

// PUT /api/answers/{question_id}
func (rt *Router) handleEditAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerPayload
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	v, err := req.value()
	if err != nil {
		writeError(w, r, err)
		return
	}
	next, err := rt.questionnaire.EditAnswer(r.Context(), currentUserID(r), mux.Vars(r)["question_id"], v)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toNextQuestionResponse(next))
}

// GET /api/questions/previous/{current_question_id}
func (rt *Router) handlePrevious(w http.ResponseWriter, r *http.Request) {
	q, err := rt.questionnaire.Previous(r.Context(), currentUserID(r), mux.Vars(r)["current_question_id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toQuestionResponse(q))
}

// GET /api/progress
func (rt *Router) handleProgress(w http.ResponseWriter, r *http.Request) {
	snap, err := rt.questionnaire.GetProgress(r.Context(), currentUserID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// GET /api/summary
func (rt *Router) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := rt.questionnaire.GetSummary(r.Context(), currentUserID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// GET /api/summary/export?format=csv|json
func (rt *Router) handleExport(w http.ResponseWriter, r *http.Request) {
	res, err := rt.questionnaire.ExportAnswers(r.Context(), currentUserID(r), r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+res.Filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Data)
}

// GET /api/question-history
func (rt *Router) handleHistory(w http.ResponseWriter, r *http.Request) {
	history, err := rt.questionnaire.GetHistory(r.Context(), currentUserID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}
