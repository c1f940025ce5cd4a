package aiola

import (
	"encoding/json"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Streaming query defaults.
const (
	defaultLangCode = "en"
	defaultTimeZone = "UTC"
)

// validate checks stream parameters before any token or network work.
func (p *StreamParams) validate() error {
	for name, value := range map[string]string{
		"workflow_id":  p.WorkflowID,
		"execution_id": p.ExecutionID,
		"lang_code":    p.LangCode,
		"time_zone":    p.TimeZone,
	} {
		if strings.ContainsAny(value, " \t\r\n") {
			return &ValidationError{Param: name, Message: "must not contain whitespace"}
		}
	}
	if err := validateKeywords(p.Keywords); err != nil {
		return err
	}
	for name := range p.TasksConfig {
		if _, ok := taskNames[name]; !ok {
			return &ValidationError{Param: "tasks_config", Message: "unknown task " + string(name)}
		}
	}
	return nil
}

func validateKeywords(keywords map[string]string) error {
	for k := range keywords {
		if strings.TrimSpace(k) == "" {
			return &ValidationError{Param: "keywords", Message: "keys must not be empty"}
		}
	}
	return nil
}

// encodeKeywords serializes keywords, sending {} when none are given.
func encodeKeywords(keywords map[string]string) (string, error) {
	if keywords == nil {
		keywords = map[string]string{}
	}
	b, err := json.Marshal(keywords)
	if err != nil {
		return "", &ValidationError{Param: "keywords", Message: err.Error()}
	}
	return string(b), nil
}

// buildQueryAndHeaders produces the streaming query parameters and auth
// headers. The workflow resolves as params > clientWorkflowID > DefaultWorkflowID.
func buildQueryAndHeaders(params StreamParams, clientWorkflowID, accessToken string) (url.Values, http.Header, error) {
	executionID := params.ExecutionID
	if executionID == "" {
		executionID = uuid.NewString()
	}

	flowID := params.WorkflowID
	if flowID == "" {
		flowID = clientWorkflowID
	}
	if flowID == "" {
		flowID = DefaultWorkflowID
	}

	langCode := params.LangCode
	if langCode == "" {
		langCode = defaultLangCode
	}

	timeZone := params.TimeZone
	if timeZone == "" {
		timeZone = defaultTimeZone
	}

	keywords, err := encodeKeywords(params.Keywords)
	if err != nil {
		return nil, nil, err
	}

	tasks, err := json.Marshal(params.TasksConfig)
	if err != nil {
		return nil, nil, &ValidationError{Param: "tasks_config", Message: err.Error()}
	}

	query := url.Values{}
	query.Set("execution_id", executionID)
	query.Set("flow_id", flowID)
	query.Set("lang_code", langCode)
	query.Set("time_zone", timeZone)
	query.Set("keywords", keywords)
	query.Set("tasks_config", string(tasks))
	query.Set("x-aiola-api-token", accessToken)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+accessToken)

	return query, header, nil
}

// streamQueryOrder is the order query keys are written in the stream URL.
var streamQueryOrder = []string{
	"execution_id",
	"flow_id",
	"lang_code",
	"time_zone",
	"keywords",
	"tasks_config",
	"x-aiola-api-token",
}

// buildStreamURL appends the query to the base URL, writing the known keys
// in streamQueryOrder and any others after them in sorted order.
func buildStreamURL(baseURL string, query url.Values) string {
	var b strings.Builder
	b.WriteString(strings.TrimSuffix(baseURL, "/"))
	b.WriteByte('?')

	first := true
	write := func(key string) {
		for _, v := range query[key] {
			if !first {
				b.WriteByte('&')
			}
			first = false
			b.WriteString(url.QueryEscape(key))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}

	known := make(map[string]bool, len(streamQueryOrder))
	for _, key := range streamQueryOrder {
		known[key] = true
		write(key)
	}

	rest := make([]string, 0, len(query))
	for key := range query {
		if !known[key] {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	for _, key := range rest {
		write(key)
	}
	return b.String()
}
