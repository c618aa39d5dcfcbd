package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// ResumeSubmission 简历提交记录，贯穿上传、解析、摘要全流程。
// SubmissionUUID 为业务主键，ContentMD5 用于内容去重。
type ResumeSubmission struct {
	SubmissionUUID  string         `gorm:"type:char(36);primaryKey" json:"submission_uuid"`
	Filename        string         `gorm:"type:varchar(512);not null" json:"filename"`
	ContentMD5      string         `gorm:"type:char(32);index:idx_submission_md5" json:"content_md5"`
	RawObjectKey    string         `gorm:"type:varchar(1024)" json:"raw_object_key,omitempty"`
	ParsedObjectKey string         `gorm:"type:varchar(1024)" json:"parsed_object_key,omitempty"`
	Status          string         `gorm:"type:varchar(50);not null;default:'PENDING';index:idx_submission_status" json:"status"`
	ParsedData      datatypes.JSON `gorm:"type:json" json:"parsed_data,omitempty"`
	Summary         string         `gorm:"type:text" json:"summary,omitempty"`
	LLMProvider     string         `gorm:"type:varchar(64)" json:"llm_provider,omitempty"`
	LLMModel        string         `gorm:"type:varchar(128)" json:"llm_model,omitempty"`
	ErrorMessage    string         `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt       time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6) ON UPDATE CURRENT_TIMESTAMP(6)" json:"updated_at"`
}

func (ResumeSubmission) TableName() string {
	return "resume_submissions"
}

// OutboxMessage 事务性发件箱消息。业务数据和待发布事件在同一事务内落库，
// 由后台中继轮询发布，保证数据库状态与消息队列的最终一致。
type OutboxMessage struct {
	ID               uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	MessageID        string     `gorm:"type:char(36);uniqueIndex:idx_outbox_message_id" json:"message_id"`
	AggregateID      string     `gorm:"type:char(36);index:idx_outbox_aggregate_id" json:"aggregate_id"`
	EventType        string     `gorm:"type:varchar(128);not null" json:"event_type"`
	Payload          string     `gorm:"type:json;not null" json:"payload"`
	TargetExchange   string     `gorm:"type:varchar(128);not null" json:"target_exchange"`
	TargetRoutingKey string     `gorm:"type:varchar(128);not null" json:"target_routing_key"`
	Status           string     `gorm:"type:varchar(20);not null;default:'PENDING';index:idx_outbox_status_created_at,priority:1" json:"status"`
	RetryCount       int        `gorm:"not null;default:0" json:"retry_count"`
	CreatedAt        time.Time  `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);index:idx_outbox_status_created_at,priority:2,sort:asc" json:"created_at"`
	ProcessedAt      *time.Time `gorm:"type:datetime(6)" json:"processed_at,omitempty"`
	ErrorMessage     string     `gorm:"type:text" json:"error_message,omitempty"`
}

func (OutboxMessage) TableName() string {
	return "outbox_messages"
}

// StructToJSON 将任意结构体序列化为 datatypes.JSON，用于写入 JSON 列。
func StructToJSON(v interface{}) (datatypes.JSON, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("序列化为JSON失败: %w", err)
	}
	return datatypes.JSON(data), nil
}

// StringToJSON 将已经是JSON文本的字符串包装为 datatypes.JSON，并校验其合法性。
func StringToJSON(s string) (datatypes.JSON, error) {
	if s == "" {
		return nil, nil
	}
	if !json.Valid([]byte(s)) {
		return nil, fmt.Errorf("字符串不是合法的JSON")
	}
	return datatypes.JSON(s), nil
}

// JSONToStruct 将 datatypes.JSON 反序列化到目标结构体。
func JSONToStruct(data datatypes.JSON, target interface{}) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("解析JSON列失败: %w", err)
	}
	return nil
}
