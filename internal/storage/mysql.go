package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/zthsk/semantic-resume-screening/internal/config"
	"github.com/zthsk/semantic-resume-screening/internal/constants"
	"github.com/zthsk/semantic-resume-screening/internal/storage/models"
	"github.com/zthsk/semantic-resume-screening/internal/tracing"
)

// gormSpanKey 用类型化的key在Statement.Context里传递span，避免字符串key冲突。
type gormSpanKey struct{}

// GormTracingPlugin 为每次GORM操作生成客户端span，
// 在before回调开启、after回调结束并记录表名、SQL与影响行数。
type GormTracingPlugin struct{}

func (p *GormTracingPlugin) Name() string {
	return "gormTracing"
}

func (p *GormTracingPlugin) Initialize(db *gorm.DB) error {
	if err := db.Callback().Create().Before("gorm:create").Register("tracing:before_create", p.beforeCallback("mysql.create")); err != nil {
		return err
	}
	if err := db.Callback().Create().After("gorm:create").Register("tracing:after_create", p.afterCallback); err != nil {
		return err
	}
	if err := db.Callback().Query().Before("gorm:query").Register("tracing:before_query", p.beforeCallback("mysql.query")); err != nil {
		return err
	}
	if err := db.Callback().Query().After("gorm:query").Register("tracing:after_query", p.afterCallback); err != nil {
		return err
	}
	if err := db.Callback().Update().Before("gorm:update").Register("tracing:before_update", p.beforeCallback("mysql.update")); err != nil {
		return err
	}
	if err := db.Callback().Update().After("gorm:update").Register("tracing:after_update", p.afterCallback); err != nil {
		return err
	}
	if err := db.Callback().Delete().Before("gorm:delete").Register("tracing:before_delete", p.beforeCallback("mysql.delete")); err != nil {
		return err
	}
	if err := db.Callback().Delete().After("gorm:delete").Register("tracing:after_delete", p.afterCallback); err != nil {
		return err
	}
	if err := db.Callback().Row().Before("gorm:row").Register("tracing:before_row", p.beforeCallback("mysql.row")); err != nil {
		return err
	}
	if err := db.Callback().Row().After("gorm:row").Register("tracing:after_row", p.afterCallback); err != nil {
		return err
	}
	if err := db.Callback().Raw().Before("gorm:raw").Register("tracing:before_raw", p.beforeCallback("mysql.raw")); err != nil {
		return err
	}
	return db.Callback().Raw().After("gorm:raw").Register("tracing:after_raw", p.afterCallback)
}

func (p *GormTracingPlugin) beforeCallback(operation string) func(*gorm.DB) {
	tracer := otel.Tracer("semantic-resume-screening/storage/mysql")
	return func(db *gorm.DB) {
		if db.Statement == nil || db.Statement.Context == nil {
			return
		}
		ctx, span := tracer.Start(db.Statement.Context, operation, trace.WithSpanKind(trace.SpanKindClient))
		db.Statement.Context = context.WithValue(ctx, gormSpanKey{}, span)
	}
}

func (p *GormTracingPlugin) afterCallback(db *gorm.DB) {
	if db.Statement == nil || db.Statement.Context == nil {
		return
	}
	span, ok := db.Statement.Context.Value(gormSpanKey{}).(trace.Span)
	if !ok {
		return
	}
	defer span.End()

	span.SetAttributes(
		attribute.String("db.system", "mysql"),
		attribute.String("db.table", db.Statement.Table),
		attribute.String("db.statement", tracing.SafeSQL(db.Statement.SQL.String())),
		attribute.Int64("db.rows_affected", db.Statement.RowsAffected),
	)
	if db.Error != nil {
		// 查不到记录是正常业务分支，不算存储错误
		if errors.Is(db.Error, gorm.ErrRecordNotFound) {
			span.SetStatus(codes.Ok, "record not found")
			return
		}
		tracing.RecordError(span, db.Error, tracing.ErrorTypeDB)
		return
	}
	span.SetStatus(codes.Ok, "")
}

// MySQL 负责简历提交记录与发件箱消息的持久化。
type MySQL struct {
	db *gorm.DB
}

// NewMySQL 建立连接池、注册链路追踪插件并自动迁移数据表。
func NewMySQL(cfg *config.MySQLConfig) (*MySQL, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local&timeout=%ds&readTimeout=%ds&writeTimeout=%ds",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database,
		cfg.ConnectTimeoutSeconds, cfg.ReadTimeoutSeconds, cfg.WriteTimeoutSeconds)

	gormLogLevel := gormlogger.Silent
	switch cfg.LogLevel {
	case 2:
		gormLogLevel = gormlogger.Error
	case 3:
		gormLogLevel = gormlogger.Warn
	case 4:
		gormLogLevel = gormlogger.Info
	}

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormLogLevel),
		DisableForeignKeyConstraintWhenMigrating: true,
		PrepareStmt:                              true,
		NowFunc: func() time.Time {
			return time.Now().Local()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("连接MySQL失败: %w", err)
	}

	if err := db.Use(&GormTracingPlugin{}); err != nil {
		return nil, fmt.Errorf("注册GORM链路追踪插件失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层数据库连接失败: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTimeMinutes) * time.Minute)

	// 迁移期间切换到静默日志，建表语句不进业务日志
	migrator := db.Session(&gorm.Session{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err := migrator.AutoMigrate(&models.ResumeSubmission{}, &models.OutboxMessage{}); err != nil {
		return nil, fmt.Errorf("自动迁移数据表失败: %w", err)
	}

	return &MySQL{db: db}, nil
}

// DB 暴露底层GORM句柄，供发件箱中继等需要自管事务的组件使用。
func (m *MySQL) DB() *gorm.DB {
	return m.db
}

func (m *MySQL) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// WithTransaction 在单个数据库事务内执行fn，fn返回错误时整体回滚。
func (m *MySQL) WithTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return m.db.WithContext(ctx).Transaction(fn)
}

// pick 选择事务句柄或默认连接。tx为nil时走连接池。
func (m *MySQL) pick(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return m.db
}

// CreateSubmission 写入简历提交记录。按submission_uuid幂等，
// 重复提交同一UUID时刷新文件名、MD5与对象键而不是报错。
func (m *MySQL) CreateSubmission(ctx context.Context, tx *gorm.DB, sub *models.ResumeSubmission) error {
	if sub.SubmissionUUID == "" {
		return fmt.Errorf("提交记录缺少submission_uuid")
	}
	if sub.Status == "" {
		sub.Status = constants.SubmissionStatusPending
	}
	err := m.pick(tx).WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "submission_uuid"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"filename", "content_md5", "raw_object_key", "status", "updated_at",
		}),
	}).Create(sub).Error
	if err != nil {
		return fmt.Errorf("创建简历提交记录失败: %w", err)
	}
	return nil
}

// GetSubmissionByUUID 按业务主键查询提交记录。
// 记录不存在时返回包装后的 gorm.ErrRecordNotFound，调用方可用 errors.Is 判断。
func (m *MySQL) GetSubmissionByUUID(ctx context.Context, submissionUUID string) (*models.ResumeSubmission, error) {
	var sub models.ResumeSubmission
	err := m.db.WithContext(ctx).
		Where("submission_uuid = ?", submissionUUID).
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("提交记录不存在 (uuid=%s): %w", submissionUUID, err)
		}
		return nil, fmt.Errorf("查询简历提交记录失败: %w", err)
	}
	return &sub, nil
}

// UpdateSubmissionStatus 更新提交状态。目标记录不存在时返回 gorm.ErrRecordNotFound。
func (m *MySQL) UpdateSubmissionStatus(ctx context.Context, submissionUUID, status string) error {
	result := m.db.WithContext(ctx).
		Model(&models.ResumeSubmission{}).
		Where("submission_uuid = ?", submissionUUID).
		Update("status", status)
	if result.Error != nil {
		return fmt.Errorf("更新提交状态失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("提交记录不存在 (uuid=%s): %w", submissionUUID, gorm.ErrRecordNotFound)
	}
	return nil
}

// MarkSubmissionFailed 将提交标记为失败并记录原因。
func (m *MySQL) MarkSubmissionFailed(ctx context.Context, submissionUUID, errMsg string) error {
	result := m.db.WithContext(ctx).
		Model(&models.ResumeSubmission{}).
		Where("submission_uuid = ?", submissionUUID).
		Updates(map[string]interface{}{
			"status":        constants.SubmissionStatusFailed,
			"error_message": errMsg,
		})
	if result.Error != nil {
		return fmt.Errorf("标记提交失败状态时出错: %w", result.Error)
	}
	return nil
}

// ParseResultUpdate 解析成功后需要回写的字段。
type ParseResultUpdate struct {
	ParsedData      datatypes.JSON
	ParsedObjectKey string
	Summary         string
	LLMProvider     string
	LLMModel        string
}

// SaveParseResult 回写解析结果并把状态推进到COMPLETED。
// 传入事务句柄时与发件箱消息共用一个事务。
func (m *MySQL) SaveParseResult(ctx context.Context, tx *gorm.DB, submissionUUID string, upd ParseResultUpdate) error {
	result := m.pick(tx).WithContext(ctx).
		Model(&models.ResumeSubmission{}).
		Where("submission_uuid = ?", submissionUUID).
		Updates(map[string]interface{}{
			"parsed_data":       upd.ParsedData,
			"parsed_object_key": upd.ParsedObjectKey,
			"summary":           upd.Summary,
			"llm_provider":      upd.LLMProvider,
			"llm_model":         upd.LLMModel,
			"status":            constants.SubmissionStatusCompleted,
			"error_message":     "",
		})
	if result.Error != nil {
		return fmt.Errorf("保存解析结果失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("提交记录不存在 (uuid=%s): %w", submissionUUID, gorm.ErrRecordNotFound)
	}
	return nil
}

// CreateOutboxMessage 写入发件箱消息，通常与业务写操作同事务。
// MessageID留空时自动生成。
func (m *MySQL) CreateOutboxMessage(ctx context.Context, tx *gorm.DB, msg *models.OutboxMessage) error {
	if msg.MessageID == "" {
		msg.MessageID = uuid.NewString()
	}
	if msg.Status == "" {
		msg.Status = constants.OutboxStatusPending
	}
	if err := m.pick(tx).WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("写入发件箱消息失败: %w", err)
	}
	return nil
}

// FetchPendingOutbox 在调用方事务内取出一批待发送消息并加行锁。
// SKIP LOCKED 让多个中继实例并行消费而互不阻塞。
func (m *MySQL) FetchPendingOutbox(tx *gorm.DB, batchSize int) ([]models.OutboxMessage, error) {
	var messagesToProcess []models.OutboxMessage
	err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("status = ?", constants.OutboxStatusPending).
		Order("created_at asc").
		Limit(batchSize).
		Find(&messagesToProcess).Error
	if err != nil {
		return nil, fmt.Errorf("查询待发送的发件箱消息失败: %w", err)
	}
	return messagesToProcess, nil
}

// MarkOutboxSent 在调用方事务内把消息标记为已发送。
func (m *MySQL) MarkOutboxSent(tx *gorm.DB, msg *models.OutboxMessage) error {
	now := time.Now()
	msg.Status = constants.OutboxStatusSent
	msg.ProcessedAt = &now
	msg.ErrorMessage = ""
	if err := tx.Save(msg).Error; err != nil {
		return fmt.Errorf("更新发件箱消息为已发送失败: %w", err)
	}
	return nil
}

// MarkOutboxRetry 发布失败时累加重试次数，达到上限后转为FAILED终态。
func (m *MySQL) MarkOutboxRetry(tx *gorm.DB, msg *models.OutboxMessage, cause error, maxRetry int) error {
	msg.RetryCount++
	if cause != nil {
		msg.ErrorMessage = cause.Error()
	}
	if msg.RetryCount >= maxRetry {
		msg.Status = constants.OutboxStatusFailed
	}
	if err := tx.Save(msg).Error; err != nil {
		return fmt.Errorf("更新发件箱消息重试状态失败: %w", err)
	}
	return nil
}
