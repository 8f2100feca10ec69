package models

import (
	"time"

	"gorm.io/datatypes"
)

// 分析来源
const (
	SourceUpload = "upload"
	SourceText   = "text"
)

// AnalysisRecord 单次简历分析的审计记录。
// 不保存简历正文，只保存哈希、得分和推荐结果。
type AnalysisRecord struct {
	AnalysisID          string         `gorm:"type:varchar(36);primaryKey"`
	Source              string         `gorm:"type:varchar(20);not null"`
	OriginalFilename    string         `gorm:"type:varchar(255)"`
	FileSize            int64          `gorm:"default:0"`
	RawFileMD5          string         `gorm:"type:char(32)"`
	TextMD5             string         `gorm:"type:char(32);index:idx_ar_text_md5"`
	TaxonomyVersion     string         `gorm:"type:varchar(50)"`
	TaxonomyFingerprint string         `gorm:"type:varchar(32)"`
	ArchiveBackend      string         `gorm:"type:varchar(20)"`
	ArchiveObjectKey    string         `gorm:"type:varchar(1024)"`
	OverallScore        int            `gorm:"not null;index:idx_ar_overall_score"`
	Breakdown           datatypes.JSON `gorm:"type:json"`
	Skills              datatypes.JSON `gorm:"type:json"`
	Recommendations     datatypes.JSON `gorm:"type:json"`
	WordCount           int            `gorm:"default:0"`
	CacheHit            bool           `gorm:"default:false"`
	CreatedAt           time.Time      `gorm:"index:idx_ar_created_at"`
}

func (AnalysisRecord) TableName() string {
	return "analysis_records"
}

// 联系消息投递状态
const (
	ContactStatusPending = "PENDING"
	ContactStatusSent    = "SENT"
	ContactStatusFailed  = "FAILED"
)

// ContactMessage 联系表单提交
type ContactMessage struct {
	ID        string     `gorm:"type:varchar(36);primaryKey"`
	Name      string     `gorm:"type:varchar(100);not null"`
	Email     string     `gorm:"type:varchar(255);not null"`
	Message   string     `gorm:"type:text;not null"`
	Status    string     `gorm:"type:varchar(20);default:'PENDING';not null;index:idx_cm_status"`
	Attempts  int        `gorm:"default:0"`
	LastError string     `gorm:"type:text"`
	SentAt    *time.Time `gorm:"null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (ContactMessage) TableName() string {
	return "contact_messages"
}
