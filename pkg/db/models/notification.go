package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/nuqtalabs/loyalty-backend/pkg/enums"
)

// Notification stores in-app alert payloads scoped to merchants, used to
// surface misconfigurations (e.g. a point award with no active reward rule).
type Notification struct {
	ID         uuid.UUID              `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	MerchantID uuid.UUID              `gorm:"type:uuid;not null"`
	Type       enums.NotificationType `gorm:"type:notification_type;not null"`
	Title      string                 `gorm:"type:text;not null"`
	Message    string                 `gorm:"type:text;not null"`
	ReadAt     *time.Time             `gorm:"type:timestamptz"`
	CreatedAt  time.Time              `gorm:"type:timestamptz;default:now()"`
}
