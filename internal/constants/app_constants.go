package constants

import "time"

const (
	// PipelineVersion 批处理流水线版本，写入 pipeline_report.json
	PipelineVersion = "1.0.0"

	// 对象存储桶名
	RawResumeBucket    = "resumes-raw"    // 原始简历 Markdown
	ParsedResumeBucket = "resumes-parsed" // 解析后的 JSON

	// 消息队列拓扑
	EventsExchange        = "screening.events"
	ResumeProcessQueue    = "resume.process"
	RoutingKeyUploaded    = "resume.uploaded"
	RoutingKeyParsed      = "resume.parsed"
	RoutingKeyParseFailed = "resume.parse_failed"

	// 去重记录的保留时长
	MD5RetentionDuration = 30 * 24 * time.Hour
	// 匹配结果缓存时长
	MatchCacheDuration = 1 * time.Hour
)

// 简历提交状态流转: PENDING -> PROCESSING -> COMPLETED / FAILED / DUPLICATE
const (
	SubmissionStatusPending    = "PENDING"
	SubmissionStatusProcessing = "PROCESSING"
	SubmissionStatusCompleted  = "COMPLETED"
	SubmissionStatusFailed     = "FAILED"
	SubmissionStatusDuplicate  = "DUPLICATE"
)

// 异步接单接口的响应状态
const (
	IntakeStatusSubmitted = "SUBMITTED_FOR_PROCESSING"
	IntakeStatusDuplicate = "DUPLICATE_FILE_SKIPPED"
)

// 发件箱消息状态
const (
	OutboxStatusPending = "PENDING"
	OutboxStatusSent    = "SENT"
	OutboxStatusFailed  = "FAILED"
)

// 事件类型，写入发件箱并作为消息队列路由依据
const (
	EventTypeResumeUploaded    = "resume.uploaded"
	EventTypeResumeParsed      = "resume.parsed"
	EventTypeResumeParseFailed = "resume.parse_failed"
)
