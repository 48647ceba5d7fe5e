package enums

import "fmt"

// NotificationType maps to the notification_type enum in Postgres. These are
// merchant-facing in-app alerts, distinct from customer emails.
type NotificationType string

const (
	NotificationTypeSystemAnnouncement NotificationType = "system_announcement"
	NotificationTypeRewardConfigGap    NotificationType = "reward_config_gap"
	NotificationTypeReconcileDrift     NotificationType = "reconcile_drift"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeSystemAnnouncement,
	NotificationTypeRewardConfigGap,
	NotificationTypeReconcileDrift,
}

// IsValid checks whether the given type matches the canonical enum.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}
