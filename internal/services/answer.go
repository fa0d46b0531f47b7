package services

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type answerKind uint8

const (
	answerNull answerKind = iota
	answerString
	answerNumber
	answerList
)

// AnswerValue is a submitted answer: null, a string, a number or a list of strings.
type AnswerValue struct {
	kind answerKind
	str  string
	num  float64
	list []string
}

func NullAnswer() AnswerValue            { return AnswerValue{} }
func StringAnswer(s string) AnswerValue  { return AnswerValue{kind: answerString, str: s} }
func NumberAnswer(n float64) AnswerValue { return AnswerValue{kind: answerNumber, num: n} }
func ListAnswer(items ...string) AnswerValue {
	return AnswerValue{kind: answerList, list: append([]string{}, items...)}
}

func (v AnswerValue) IsNull() bool   { return v.kind == answerNull }
func (v AnswerValue) IsString() bool { return v.kind == answerString }
func (v AnswerValue) IsNumber() bool { return v.kind == answerNumber }
func (v AnswerValue) IsList() bool   { return v.kind == answerList }

func (v AnswerValue) Str() string     { return v.str }
func (v AnswerValue) Number() float64 { return v.num }
func (v AnswerValue) List() []string  { return append([]string(nil), v.list...) }

// IsEmpty reports null, blank strings and empty lists.
func (v AnswerValue) IsEmpty() bool {
	switch v.kind {
	case answerNull:
		return true
	case answerString:
		return strings.TrimSpace(v.str) == ""
	case answerList:
		return len(v.list) == 0
	}
	return false
}

// Canonical is the transition-mapping key for the answer.
func (v AnswerValue) Canonical() string {
	switch v.kind {
	case answerString:
		return v.str
	case answerNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case answerList:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		items := v.list
		if items == nil {
			items = []string{}
		}
		if err := enc.Encode(items); err != nil {
			return ""
		}
		return strings.TrimSuffix(buf.String(), "\n")
	}
	return ""
}

// Equal is structural equality; list order matters.
func (v AnswerValue) Equal(o AnswerValue) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case answerString:
		return v.str == o.str
	case answerNumber:
		return v.num == o.num
	case answerList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if v.list[i] != o.list[i] {
				return false
			}
		}
	}
	return true
}

func (v AnswerValue) String() string {
	if v.kind == answerNull {
		return "null"
	}
	return v.Canonical()
}

func (v AnswerValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case answerString:
		return json.Marshal(v.str)
	case answerNumber:
		return json.Marshal(v.num)
	case answerList:
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	}
	return []byte("null"), nil
}

var errUnsupportedAnswer = errors.New("answer must be a string, a number, a list of strings or null")

func (v *AnswerValue) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*v = NullAnswer()
		return nil
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*v = StringAnswer(s)
		return nil
	case '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return err
		}
		items := make([]string, 0, len(raw))
		for i, el := range raw {
			var s string
			if err := json.Unmarshal(el, &s); err != nil {
				return fmt.Errorf("list answer element %d: %w", i, errUnsupportedAnswer)
			}
			items = append(items, s)
		}
		*v = AnswerValue{kind: answerList, list: items}
		return nil
	case '{', 't', 'f':
		return errUnsupportedAnswer
	}
	var n float64
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return errUnsupportedAnswer
	}
	*v = NumberAnswer(n)
	return nil
}

// ParseAnswerJSON decodes a stored or submitted answer payload.
func ParseAnswerJSON(raw []byte) (AnswerValue, error) {
	var v AnswerValue
	if err := v.UnmarshalJSON(raw); err != nil {
		return AnswerValue{}, err
	}
	return v, nil
}
