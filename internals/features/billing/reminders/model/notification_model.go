package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"condoku_backend/internals/features/billing/identifiers"
)

var NotificationCodeFamily = identifiers.Family{Table: "notifications", Column: "notification_code"}

const NotificationCodePrefix = "TB"

type NotificationModel struct {
	NotificationID            uuid.UUID      `gorm:"column:notification_id;primaryKey;type:uuid;default:gen_random_uuid()" json:"notification_id"`
	NotificationCode          string         `gorm:"column:notification_code;type:varchar(30);not null;uniqueIndex:uq_notification_code" json:"notification_code"` // TB0001, TB0002, ...
	NotificationTitle         string         `gorm:"column:notification_title;type:varchar(255);not null" json:"notification_title"`
	NotificationDescription   string         `gorm:"column:notification_description;type:text" json:"notification_description"`
	NotificationKind          string         `gorm:"column:notification_kind;type:varchar(20);not null" json:"notification_kind"` // overdue | late_fee | manual
	NotificationInvoiceID     string         `gorm:"column:notification_invoice_id;type:varchar(64);index" json:"notification_invoice_id"`
	NotificationApartmentCode string         `gorm:"column:notification_apartment_code;type:varchar(30);index" json:"notification_apartment_code"`
	NotificationTags          pq.StringArray `gorm:"column:notification_tags;type:text[]" json:"notification_tags"`
	NotificationCreatedAt     time.Time      `gorm:"column:notification_created_at;autoCreateTime" json:"notification_created_at"`
	NotificationUpdatedAt     time.Time      `gorm:"column:notification_updated_at;autoUpdateTime" json:"notification_updated_at"`
}

func (NotificationModel) TableName() string {
	return "notifications"
}

func (m *NotificationModel) BeforeCreate(tx *gorm.DB) error {
	if m.NotificationID == uuid.Nil {
		m.NotificationID = uuid.New()
	}
	return nil
}
