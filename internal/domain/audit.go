package domain

import "time"

// AuditLog records one authenticated request against the API.
type AuditLog struct {
	ID         string    `json:"id"         bson:"_id"`
	UserID     string    `json:"userId"     bson:"userId"`
	Action     string    `json:"action"     bson:"action"`
	Resource   string    `json:"resource"   bson:"resource"`
	ResourceID string    `json:"resourceId" bson:"resourceId"`
	Details    string    `json:"details"    bson:"details"` // JSON blob
	IP         string    `json:"ip"         bson:"ip"`
	UserAgent  string    `json:"userAgent"  bson:"userAgent"`
	CreatedAt  time.Time `json:"createdAt"  bson:"createdAt"`
}

// Audit action constants.
const (
	AuditActionLogin           = "login"
	AuditActionRepoConnect     = "repo_connect"
	AuditActionRepoDelete      = "repo_delete"
	AuditActionRepoSync        = "repo_sync"
	AuditActionSettingsUpdate  = "settings_update"
	AuditActionWebhookRegister = "webhook_register"
	AuditActionRAGQuery        = "rag_query"
)
