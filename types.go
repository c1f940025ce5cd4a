package aiola

// LiveEvent names an event pushed by the streaming service.
type LiveEvent string

// Live streaming events.
const (
	EventTranscript              LiveEvent = "transcript"
	EventTranslation             LiveEvent = "translation"
	EventSentimentAnalysis       LiveEvent = "sentiment_analysis"
	EventSummarization           LiveEvent = "summarization"
	EventTopicDetection          LiveEvent = "topic_detection"
	EventContentModeration       LiveEvent = "content_moderation"
	EventAutoChapters            LiveEvent = "auto_chapters"
	EventFormFilling             LiveEvent = "form_filling"
	EventEntityDetection         LiveEvent = "entity_detection"
	EventEntityDetectionFromList LiveEvent = "entity_detection_from_list"
	EventKeyPhrases              LiveEvent = "key_phrases"
	EventPIIRedaction            LiveEvent = "pii_redaction"
	EventError                   LiveEvent = "error"
	EventConnect                 LiveEvent = "connect"
	EventDisconnect              LiveEvent = "disconnect"
)

var liveEvents = map[LiveEvent]struct{}{
	EventTranscript:              {},
	EventTranslation:             {},
	EventSentimentAnalysis:       {},
	EventSummarization:           {},
	EventTopicDetection:          {},
	EventContentModeration:       {},
	EventAutoChapters:            {},
	EventFormFilling:             {},
	EventEntityDetection:         {},
	EventEntityDetectionFromList: {},
	EventKeyPhrases:              {},
	EventPIIRedaction:            {},
	EventError:                   {},
	EventConnect:                 {},
	EventDisconnect:              {},
}

// Valid reports whether e is a known live event.
func (e LiveEvent) Valid() bool {
	_, ok := liveEvents[e]
	return ok
}

// TaskName names an auxiliary task requested alongside transcription.
type TaskName string

// Tasks accepted in TasksConfig.
const (
	TaskFormFilling             TaskName = "FORM_FILLING"
	TaskTranslation             TaskName = "TRANSLATION"
	TaskEntityDetection         TaskName = "ENTITY_DETECTION"
	TaskEntityDetectionFromList TaskName = "ENTITY_DETECTION_FROM_LIST"
	TaskKeyPhrases              TaskName = "KEY_PHRASES"
	TaskPIIRedaction            TaskName = "PII_REDACTION"
	TaskSentimentAnalysis       TaskName = "SENTIMENT_ANALYSIS"
	TaskSummarization           TaskName = "SUMMARIZATION"
	TaskTopicDetection          TaskName = "TOPIC_DETECTION"
	TaskContentModeration       TaskName = "CONTENT_MODERATION"
	TaskAutoChapters            TaskName = "AUTO_CHAPTERS"
)

var taskNames = map[TaskName]struct{}{
	TaskFormFilling:             {},
	TaskTranslation:             {},
	TaskEntityDetection:         {},
	TaskEntityDetectionFromList: {},
	TaskKeyPhrases:              {},
	TaskPIIRedaction:            {},
	TaskSentimentAnalysis:       {},
	TaskSummarization:           {},
	TaskTopicDetection:          {},
	TaskContentModeration:       {},
	TaskAutoChapters:            {},
}

// TranslationPayload configures the TRANSLATION task.
type TranslationPayload struct {
	SrcLangCode string `json:"src_lang_code"`
	DstLangCode string `json:"dst_lang_code"`
}

// EntityDetectionFromListPayload configures the ENTITY_DETECTION_FROM_LIST task.
type EntityDetectionFromListPayload struct {
	EntityList []string `json:"entity_list"`
}

// EmptyPayload enables a task that takes no configuration.
type EmptyPayload struct{}

// TasksConfig maps tasks to their payloads. A nil TasksConfig is sent as
// JSON null; an empty non-nil one is sent as {}.
type TasksConfig map[TaskName]interface{}

// StreamParams contains parameters for a live transcription stream.
// Empty fields take their defaults.
type StreamParams struct {
	// WorkflowID overrides the client-level workflow for this stream.
	WorkflowID string
	// ExecutionID correlates the session; a random UUID is generated if empty.
	ExecutionID string
	LangCode    string
	TimeZone    string
	// Keywords maps spoken variants to their canonical phrase.
	Keywords    map[string]string
	TasksConfig TasksConfig
}

// Segment is a timed span of a transcription.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// TranscriptionMetadata describes the transcribed file.
type TranscriptionMetadata struct {
	FileDuration float64 `json:"file_duration"`
	Language     string  `json:"language"`
	SampleRate   int     `json:"sample_rate"`
	NumChannels  int     `json:"num_channels"`
	TimestampUTC string  `json:"timestamp_utc"`
	ModelVersion string  `json:"model_version"`
}

// TranscriptionResponse is the result of a file transcription.
type TranscriptionResponse struct {
	Transcript    string                `json:"transcript"`
	RawTranscript string                `json:"raw_transcript"`
	Segments      []Segment             `json:"segments"`
	Metadata      TranscriptionMetadata `json:"metadata"`
}

// TranscribeParams contains optional parameters for file transcription.
type TranscribeParams struct {
	// Filename is reported to the service; defaults to "audio".
	Filename string
	Language string
	Keywords map[string]string
}

// TTSParams contains parameters for TTS requests.
type TTSParams struct {
	Text     string
	Voice    string
	Language string
}

// TTSResult contains a fully buffered synthesis.
type TTSResult struct {
	RawData     []byte
	ContentType string
}

type ttsRequest struct {
	Text     string  `json:"text"`
	Voice    string  `json:"voice"`
	Language *string `json:"language"`
}
