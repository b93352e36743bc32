package entity

import "time"

// Notification is an outbound message produced after a committed decision
type Notification struct {
	ID              int64            `json:"id"`
	UUID            string           `json:"uuid"`
	AggregateID     int64            `json:"aggregate_id"`
	RecipientUserID string           `json:"recipient_user_id"`
	Title           string           `json:"title"`
	Message         string           `json:"message"`
	Type            NotificationType `json:"type"`
	Link            string           `json:"link"`
	Status          string           `json:"status"`
	Attempts        int              `json:"attempts"`
	ErrorMessage    string           `json:"error_message,omitempty"`
	SentAt          *time.Time       `json:"sent_at,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// User is a directory entry used to address notifications
type User struct {
	UserID      string     `json:"user_id"`
	DisplayName string     `json:"display_name"`
	Department  Department `json:"department"`
	Role        Role       `json:"role"`
	LarkOpenID  string     `json:"lark_open_id,omitempty"`
}

// SystemConfig represents system configuration key-value pairs
type SystemConfig struct {
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	Description string    `json:"description"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// InventoryItem is an ERP stock snapshot for one SKU
type InventoryItem struct {
	SKU         string    `json:"sku"`
	Description string    `json:"description"`
	Warehouse   string    `json:"warehouse"`
	OnHand      float64   `json:"on_hand"`
	Reserved    float64   `json:"reserved"`
	Unit        string    `json:"unit"`
	RefreshedAt time.Time `json:"refreshed_at"`
}

// Available returns on-hand stock not already reserved
func (i *InventoryItem) Available() float64 {
	return i.OnHand - i.Reserved
}
