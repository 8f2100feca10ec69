package storage

import (
	"context"
	"errors"
	"fmt"
	stdlog "log"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"resume-ats-go/internal/config"
	"resume-ats-go/internal/logger"
	"resume-ats-go/internal/storage/models"
)

// ErrRecordNotFound 查询的记录不存在
var ErrRecordNotFound = gorm.ErrRecordNotFound

// Database 审计记录、联系消息和 outbox 所在的关系数据库
type Database struct {
	db  *gorm.DB
	cfg *config.DatabaseConfig
}

// dialectorFor 根据驱动名选择GORM方言
func dialectorFor(cfg *config.DatabaseConfig) (gorm.Dialector, error) {
	dsn := cfg.DSNString()
	switch cfg.Driver {
	case "", "mysql":
		return mysql.Open(dsn), nil
	case "postgres":
		return postgres.Open(dsn), nil
	default:
		return nil, fmt.Errorf("不支持的数据库驱动: %s", cfg.Driver)
	}
}

// gormLogLevel 配置值(1-4)映射到GORM日志级别
func gormLogLevel(level int) gormlogger.LogLevel {
	switch level {
	case 1:
		return gormlogger.Silent
	case 2:
		return gormlogger.Error
	case 3:
		return gormlogger.Warn
	case 4:
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}

// NewDatabase 连接数据库，注册追踪插件并自动迁移表结构
func NewDatabase(cfg *config.DatabaseConfig) (*Database, error) {
	if cfg == nil {
		return nil, fmt.Errorf("数据库配置不能为空")
	}
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	// SQL 日志写入 zerolog
	gl := gormlogger.New(
		stdlog.New(logger.Logger.With().Str("component", "gorm").Logger(), "", 0),
		gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormLogLevel(cfg.LogLevel),
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gl,
		PrepareStmt:                              true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("连接数据库(%s)失败: %w", dialector.Name(), err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTimeMinutes) * time.Minute)

	if err := db.Use(NewGormTracingPlugin(dialector.Name(), cfg.Database)); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("注册追踪插件失败: %w", err)
	}

	d := &Database{db: db, cfg: cfg}
	if err := d.autoMigrateSchema(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("自动迁移数据库结构失败: %w", err)
	}

	logger.Info().Str("driver", dialector.Name()).Msg("成功连接到数据库并完成结构迁移")
	return d, nil
}

// autoMigrateSchema 使用GORM自动迁移数据库表结构，迁移期间关闭SQL日志
func (d *Database) autoMigrateSchema() error {
	silentDB := d.db.Session(&gorm.Session{Logger: d.db.Logger.LogMode(gormlogger.Silent)})
	if err := silentDB.AutoMigrate(
		&models.AnalysisRecord{},
		&models.ContactMessage{},
		&models.OutboxMessage{},
	); err != nil {
		return fmt.Errorf("GORM自动迁移失败: %w", err)
	}
	return nil
}

// DB 返回GORM数据库连接实例
func (d *Database) DB() *gorm.DB {
	return d.db
}

// Driver 当前数据库方言
func (d *Database) Driver() string {
	return d.db.Dialector.Name()
}

// Ping 检查数据库连接
func (d *Database) Ping(ctx context.Context) error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close 关闭数据库连接
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	return sqlDB.Close()
}

// SaveAnalysis 在同一事务中写入分析记录和待发布事件
func (d *Database) SaveAnalysis(ctx context.Context, record *models.AnalysisRecord, events ...*models.OutboxMessage) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(record).Error; err != nil {
			return fmt.Errorf("写入分析记录失败: %w", err)
		}
		return createOutboxMessages(tx, events)
	})
}

// CreateContactMessage 在同一事务中写入联系消息和待发布事件
func (d *Database) CreateContactMessage(ctx context.Context, msg *models.ContactMessage, events ...*models.OutboxMessage) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return fmt.Errorf("写入联系消息失败: %w", err)
		}
		return createOutboxMessages(tx, events)
	})
}

// GetContactMessage 按ID读取联系消息，不存在时返回 ErrRecordNotFound
func (d *Database) GetContactMessage(ctx context.Context, id string) (*models.ContactMessage, error) {
	var msg models.ContactMessage
	if err := d.db.WithContext(ctx).First(&msg, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &msg, nil
}

// UpdateContactStatus 记录一次投递尝试的结果
func (d *Database) UpdateContactStatus(ctx context.Context, id, status string, sendErr error) error {
	updates := map[string]interface{}{
		"status":   status,
		"attempts": gorm.Expr("attempts + ?", 1),
	}
	if sendErr != nil {
		updates["last_error"] = sendErr.Error()
	} else {
		updates["last_error"] = ""
	}
	if status == models.ContactStatusSent {
		updates["sent_at"] = time.Now().UTC()
	}
	res := d.db.WithContext(ctx).Model(&models.ContactMessage{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// EnqueueOutbox 单独写入 outbox 事件
func (d *Database) EnqueueOutbox(ctx context.Context, events ...*models.OutboxMessage) error {
	return createOutboxMessages(d.db.WithContext(ctx), events)
}

func createOutboxMessages(tx *gorm.DB, events []*models.OutboxMessage) error {
	for _, ev := range events {
		if ev == nil {
			continue
		}
		if ev.Status == "" {
			ev.Status = models.OutboxStatusPending
		}
		if err := tx.Create(ev).Error; err != nil {
			return fmt.Errorf("写入outbox事件失败: %w", err)
		}
	}
	return nil
}

// IsNotFound 判断是否为记录不存在
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, ErrNotFound)
}
