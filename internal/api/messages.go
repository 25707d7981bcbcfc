package api

import "time"

type PingRequest struct{}

type PingResponse struct {
	Status string `json:"status"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Verifier []byte `json:"verifier"`
}

type RegisterResponse struct {
	UserID string `json:"user_id"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Verifier []byte `json:"verifier"`
}

type LoginResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// FileInfo is a stored file as the owner sees it. The cipher parameters
// travel only with downloads.
type FileInfo struct {
	ID             string     `json:"id"`
	Filename       string     `json:"filename"`
	MimeType       string     `json:"mimetype"`
	Size           int64      `json:"size"`
	ContentHash    []byte     `json:"content_hash"`
	State          string     `json:"state"`
	UploadedAt     time.Time  `json:"uploaded_at"`
	LastAccessedAt time.Time  `json:"last_accessed_at"`
	TrashedAt      *time.Time `json:"trashed_at,omitempty"`
}

type ListFilesRequest struct {
	// State is "active" or "trashed"; empty means active.
	State string `json:"state"`
}

type ListFilesResponse struct {
	Files []FileInfo `json:"files"`
}

// FileRequest names one of the caller's files.
type FileRequest struct {
	ID string `json:"id"`
}

type FileResponse struct {
	File FileInfo `json:"file"`
}

type PurgeResponse struct{}

type DownloadRequest struct {
	ID   string `json:"id"`
	View bool   `json:"view"`
}

type UploadResponse struct {
	File FileInfo `json:"file"`
}

type DuplicatesRequest struct{}

type DuplicateGroup struct {
	ContentHash []byte     `json:"content_hash"`
	Files       []FileInfo `json:"files"`
	WastedBytes int64      `json:"wasted_bytes"`
}

type DuplicatesResponse struct {
	Groups      []DuplicateGroup `json:"groups"`
	WastedBytes int64            `json:"wasted_bytes"`
}

type StatsRequest struct{}

type CategoryUsage struct {
	Category   string `json:"category"`
	Files      int64  `json:"files"`
	TotalBytes int64  `json:"total_bytes"`
}

type StatsResponse struct {
	Files      int64 `json:"files"`
	TotalBytes int64 `json:"total_bytes"`
	// DuplicateBytes is what removing all but one copy of each duplicate
	// would free.
	DuplicateBytes int64           `json:"duplicate_bytes"`
	Categories     []CategoryUsage `json:"categories"`
	LargeFiles     []FileInfo      `json:"large_files"`
	Hottest        []FileInfo      `json:"hottest"`
	Coldest        []FileInfo      `json:"coldest"`
}

type AuditLogRequest struct {
	Action string `json:"action"`
	Search string `json:"search"`
	Page   int    `json:"page"`
	Limit  int    `json:"limit"`
}

type AuditEntry struct {
	Action    string    `json:"action"`
	Filename  string    `json:"filename"`
	Outcome   string    `json:"outcome"`
	Timestamp time.Time `json:"timestamp"`
	IP        string    `json:"ip"`
	UserAgent string    `json:"user_agent"`
}

type AuditLogResponse struct {
	Entries []AuditEntry `json:"entries"`
	Total   int          `json:"total"`
	Page    int          `json:"page"`
	Pages   int          `json:"pages"`
}
