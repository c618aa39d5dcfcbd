package storage

import "time"

// ResumeUploadedEvent 简历上传落库后写入发件箱的事件，消费者据此触发解析。
type ResumeUploadedEvent struct {
	SubmissionUUID string    `json:"submission_uuid"`
	Filename       string    `json:"filename"`
	RawObjectKey   string    `json:"raw_object_key"`
	ContentMD5     string    `json:"content_md5"`
	UploadedAt     time.Time `json:"uploaded_at"`
}

// ResumeParsedEvent 解析流程结束后发布的事件，覆盖成功与失败两种终态。
type ResumeParsedEvent struct {
	SubmissionUUID string    `json:"submission_uuid"`
	Filename       string    `json:"filename"`
	Status         string    `json:"status"`
	Summary        string    `json:"summary,omitempty"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	ParsedAt       time.Time `json:"parsed_at"`
}
