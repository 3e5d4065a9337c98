package store

import "time"

// Customer is an account holder in the customer portal. Projects reference
// customers by UID (the hosted auth identity), not by document ID.
type Customer struct {
	ID                 string    `firestore:"-" json:"id"`
	UID                string    `firestore:"uid" json:"uid"`
	CustomerNumber     string    `firestore:"customerNumber" json:"customerNumber"`
	Email              string    `firestore:"email" json:"email"`
	Name               string    `firestore:"name" json:"name"`
	MobileNumber       string    `firestore:"mobileNumber,omitempty" json:"mobileNumber,omitempty"`
	Enabled            bool      `firestore:"enabled" json:"enabled"`
	CanViewAllProjects bool      `firestore:"canViewAllProjects" json:"canViewAllProjects"`
	CreatedAt          time.Time `firestore:"createdAt" json:"createdAt"`
}

type Project struct {
	ID                string    `firestore:"-" json:"id"`
	Name              string    `firestore:"name" json:"name"`
	CustomerID        string    `firestore:"customerId" json:"customerId"`
	Year              int       `firestore:"year" json:"year"`
	ProjectNumber     string    `firestore:"projectNumber" json:"projectNumber"`
	NotificationEmail string    `firestore:"notificationEmail,omitempty" json:"notificationEmail,omitempty"`
	Enabled           bool      `firestore:"enabled" json:"enabled"`
	ThumbnailURL      string    `firestore:"thumbnailUrl,omitempty" json:"thumbnailUrl,omitempty"`
	CreatedAt         time.Time `firestore:"createdAt" json:"createdAt"`
}

// FileRecord is the metadata document for one uploaded file. Content lives in
// blob storage under StorageID; the record lives in the per-folder collection
// files/projects/{projectID}/{folderKey}/files.
type FileRecord struct {
	ID          string    `firestore:"-" json:"id"`
	FileName    string    `firestore:"fileName" json:"fileName"`
	StorageID   string    `firestore:"storageId" json:"storageId"`
	ContentURL  string    `firestore:"contentUrl,omitempty" json:"contentUrl,omitempty"`
	Size        int64     `firestore:"size" json:"size"`
	ContentType string    `firestore:"contentType,omitempty" json:"contentType,omitempty"`
	UploadedBy  string    `firestore:"uploadedBy,omitempty" json:"uploadedBy,omitempty"`
	UploadedAt  time.Time `firestore:"uploadedAt" json:"uploadedAt"`
}

// StatusRecord marks a file as read or approved. The document ID is the
// encoded file key, so there is at most one record per file per kind and a
// repeated write only refreshes the timestamp.
type StatusRecord struct {
	Done      bool      `firestore:"done" json:"done"`
	StorageID string    `firestore:"storageId,omitempty" json:"storageId,omitempty"`
	Actor     string    `firestore:"actor,omitempty" json:"actor,omitempty"`
	UpdatedAt time.Time `firestore:"updatedAt,serverTimestamp" json:"updatedAt"`
}

// User is a staff account for the dashboard. Customers authenticate against
// the hosted auth service in the portal, never here.
type User struct {
	ID             string     `firestore:"-"`
	DisplayName    string     `firestore:"displayName"`
	Email          string     `firestore:"email"`
	PasswordHash   string     `firestore:"passwordHash"`
	Role           string     `firestore:"role"`
	ResetToken     string     `firestore:"resetToken,omitempty"`
	ResetExpiresAt *time.Time `firestore:"resetExpiresAt,omitempty"`
	DeactivatedAt  *time.Time `firestore:"deactivatedAt,omitempty"`
	CreatedAt      time.Time  `firestore:"createdAt"`
	UpdatedAt      time.Time  `firestore:"updatedAt"`
}

// RefreshSession is the Firestore fallback for refresh tokens when Redis is
// not configured. The document ID is the token hash.
type RefreshSession struct {
	UserID    string    `firestore:"userId"`
	ExpiresAt time.Time `firestore:"expiresAt"`
	CreatedAt time.Time `firestore:"createdAt"`
}

// RevokedToken is the Firestore fallback denylist entry for a logged-out
// access token. The document ID is the token's JTI; entries past ExpiresAt
// are dead weight and get cleaned up on read.
type RevokedToken struct {
	ExpiresAt time.Time `firestore:"expiresAt"`
	RevokedAt time.Time `firestore:"revokedAt"`
}
