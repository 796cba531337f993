// Package quota implements glFTPd-style per-user and per-group storage
// quotas and upload:download transfer ratios, plus the cumulative transfer
// statistics fed to SITE commands.
package quota

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// UserQuota tracks how much of a storage allocation a user has consumed.
type UserQuota struct {
	Username    string `json:"username"`
	MaxBytes    int64  `json:"max_bytes"`
	UsedBytes   int64  `json:"used_bytes"`
	BaseDir     string `json:"base_dir"`
	IsUnlimited bool   `json:"is_unlimited"`
}

// NewUserQuota builds a quota with maxBytes == 0 treated as unlimited.
func NewUserQuota(username string, maxBytes int64, baseDir string) UserQuota {
	return UserQuota{
		Username:    username,
		MaxBytes:    maxBytes,
		BaseDir:     baseDir,
		IsUnlimited: maxBytes == 0,
	}
}

// UnlimitedUserQuota builds a quota with no storage cap.
func UnlimitedUserQuota(username, baseDir string) UserQuota {
	return UserQuota{Username: username, BaseDir: baseDir, IsUnlimited: true}
}

// CheckQuota reports whether adding additionalBytes would exceed the cap.
func (q *UserQuota) CheckQuota(additionalBytes int64) error {
	if q.IsUnlimited {
		return nil
	}
	if q.UsedBytes+additionalBytes > q.MaxBytes {
		return newError(ErrQuotaExceeded, "quota exceeded for user %s", q.Username)
	}
	return nil
}

// UpdateUsedBytes applies an upload of bytes, failing if it would exceed quota.
func (q *UserQuota) UpdateUsedBytes(bytes int64) error {
	if err := q.CheckQuota(bytes); err != nil {
		return err
	}
	q.UsedBytes += bytes
	return nil
}

// ReduceUsedBytes accounts for a deletion, never going negative.
func (q *UserQuota) ReduceUsedBytes(bytes int64) {
	if q.UsedBytes >= bytes {
		q.UsedBytes -= bytes
	} else {
		q.UsedBytes = 0
	}
}

// UsagePercentage returns used/max as a percentage, 0 for unlimited quotas.
func (q *UserQuota) UsagePercentage() float64 {
	if q.IsUnlimited || q.MaxBytes == 0 {
		return 0
	}
	return float64(q.UsedBytes) / float64(q.MaxBytes) * 100
}

// FormatQuota renders the quota the way glFTPd's SITE QUOTA does.
func (q *UserQuota) FormatQuota() string {
	if q.IsUnlimited {
		return "Unlimited"
	}
	usedMB := float64(q.UsedBytes) / (1024 * 1024)
	maxMB := float64(q.MaxBytes) / (1024 * 1024)
	return strings.TrimSpace(
		fmt.Sprintf("%.2fMB / %.2fMB (%.1f%%)", usedMB, maxMB, q.UsagePercentage()),
	)
}

// GroupQuota caps the combined storage used by members of a group.
type GroupQuota struct {
	GroupName   string `json:"groupname"`
	MaxBytes    int64  `json:"max_bytes"`
	IsUnlimited bool   `json:"is_unlimited"`
}

// NewGroupQuota builds a group quota with maxBytes == 0 treated as unlimited.
func NewGroupQuota(groupName string, maxBytes int64) GroupQuota {
	return GroupQuota{GroupName: groupName, MaxBytes: maxBytes, IsUnlimited: maxBytes == 0}
}

// UnlimitedGroupQuota builds a group quota with no storage cap.
func UnlimitedGroupQuota(groupName string) GroupQuota {
	return GroupQuota{GroupName: groupName, IsUnlimited: true}
}

// UserRatio tracks a user's upload:download credit, glFTPd style.
type UserRatio struct {
	Username        string `json:"username"`
	UploadRatio     uint32 `json:"upload_ratio"`
	DownloadRatio   uint32 `json:"download_ratio"`
	UploadedBytes   int64  `json:"uploaded_bytes"`
	DownloadedBytes int64  `json:"downloaded_bytes"`
	IsUnlimited     bool   `json:"is_unlimited"`
}

// ParseUserRatio parses a "upload:download" string (e.g. "1:1", "1:2"), or
// "unlimited"/"0:0" for no ratio enforcement.
func ParseUserRatio(username, ratioStr string) (UserRatio, error) {
	if strings.EqualFold(ratioStr, "unlimited") || ratioStr == "0:0" {
		return UnlimitedUserRatio(username), nil
	}

	up, down, err := splitRatio(ratioStr)
	if err != nil {
		return UserRatio{}, err
	}

	return UserRatio{
		Username:      username,
		UploadRatio:   up,
		DownloadRatio: down,
	}, nil
}

// UnlimitedUserRatio builds a ratio with no credit enforcement.
func UnlimitedUserRatio(username string) UserRatio {
	return UserRatio{Username: username, IsUnlimited: true}
}

func splitRatio(ratioStr string) (up, down uint32, err error) {
	parts := strings.Split(ratioStr, ":")
	if len(parts) != 2 {
		return 0, 0, newError(ErrInvalidConfig, "invalid ratio format: %s", ratioStr)
	}
	upVal, perr := strconv.ParseUint(parts[0], 10, 32)
	if perr != nil {
		return 0, 0, newError(ErrInvalidConfig, "invalid upload ratio: %s", parts[0])
	}
	downVal, perr := strconv.ParseUint(parts[1], 10, 32)
	if perr != nil {
		return 0, 0, newError(ErrInvalidConfig, "invalid download ratio: %s", parts[1])
	}
	return uint32(upVal), uint32(downVal), nil
}

// CheckDownload reports whether the user has enough upload credit for a
// download of downloadBytes, per the glFTPd credit law:
//
//	credit = uploaded_bytes/upload_ratio - downloaded_bytes
func (r *UserRatio) CheckDownload(downloadBytes int64) error {
	if r.IsUnlimited {
		return nil
	}

	availableCredit := int64(float64(r.UploadedBytes) / float64(r.UploadRatio))

	if availableCredit >= r.DownloadedBytes+downloadBytes {
		return nil
	}

	remaining := availableCredit - r.DownloadedBytes
	if remaining < 0 {
		remaining = 0
	}
	needed := downloadBytes - remaining
	if needed < 0 {
		needed = 0
	}
	return newError(ErrRatioLimitReached,
		"%s: need %d more upload credit for %d download", r.Username, needed, downloadBytes)
}

// UpdateDownloaded records a download, failing if the ratio forbids it.
func (r *UserRatio) UpdateDownloaded(bytes int64) error {
	if err := r.CheckDownload(bytes); err != nil {
		return err
	}
	r.DownloadedBytes += bytes
	return nil
}

// UpdateUploaded records an upload; uploads always succeed and build credit.
func (r *UserRatio) UpdateUploaded(bytes int64) {
	r.UploadedBytes += bytes
}

// CurrentRatioString reports the user's actual upload:download ratio so far.
func (r *UserRatio) CurrentRatioString() string {
	switch {
	case r.IsUnlimited:
		return "Unlimited"
	case r.DownloadedBytes == 0:
		return "No downloads yet"
	default:
		ratio := float64(r.UploadedBytes) / float64(r.DownloadedBytes)
		return fmt.Sprintf("%.2f:1", ratio)
	}
}

// ConfiguredRatioString reports the ratio as configured, e.g. "1:2".
func (r *UserRatio) ConfiguredRatioString() string {
	if r.IsUnlimited {
		return "Unlimited"
	}
	return fmt.Sprintf("%d:%d", r.UploadRatio, r.DownloadRatio)
}

// FormatRatio renders the ratio the way glFTPd's SITE RATIO does.
func (r *UserRatio) FormatRatio() string {
	if r.IsUnlimited {
		return "Unlimited"
	}
	uploadMB := float64(r.UploadedBytes) / (1024 * 1024)
	downloadMB := float64(r.DownloadedBytes) / (1024 * 1024)
	var current float64
	if r.DownloadedBytes > 0 {
		current = float64(r.UploadedBytes) / float64(r.DownloadedBytes)
	}
	return fmt.Sprintf("Upload: %.2fMB, Download: %.2fMB, Ratio: %.2f:1 (Configured: %d:%d)",
		uploadMB, downloadMB, current, r.UploadRatio, r.DownloadRatio)
}

// GroupRatio is the group-level analogue of UserRatio.
type GroupRatio struct {
	GroupName     string `json:"groupname"`
	UploadRatio   uint32 `json:"upload_ratio"`
	DownloadRatio uint32 `json:"download_ratio"`
	IsUnlimited   bool   `json:"is_unlimited"`
}

// ParseGroupRatio parses a "upload:download" string for a group.
func ParseGroupRatio(groupName, ratioStr string) (GroupRatio, error) {
	if strings.EqualFold(ratioStr, "unlimited") || ratioStr == "0:0" {
		return GroupRatio{GroupName: groupName, IsUnlimited: true}, nil
	}
	up, down, err := splitRatio(ratioStr)
	if err != nil {
		return GroupRatio{}, err
	}
	return GroupRatio{GroupName: groupName, UploadRatio: up, DownloadRatio: down}, nil
}

// UserTransferStats accumulates a user's lifetime transfer activity.
type UserTransferStats struct {
	Username        string     `json:"username"`
	TotalUploaded   int64      `json:"total_uploaded"`
	TotalDownloaded int64      `json:"total_downloaded"`
	FilesUploaded   uint32     `json:"files_uploaded"`
	FilesDownloaded uint32     `json:"files_downloaded"`
	LastActivity    *time.Time `json:"last_activity,omitempty"`
}

// NewUserTransferStats builds a zeroed stats record for username.
func NewUserTransferStats(username string) UserTransferStats {
	now := time.Now()
	return UserTransferStats{Username: username, LastActivity: &now}
}

// RecordUpload accounts for an uploaded file of the given size.
func (s *UserTransferStats) RecordUpload(bytes int64) {
	s.TotalUploaded += bytes
	s.FilesUploaded++
	now := time.Now()
	s.LastActivity = &now
}

// RecordDownload accounts for a downloaded file of the given size.
func (s *UserTransferStats) RecordDownload(bytes int64) {
	s.TotalDownloaded += bytes
	s.FilesDownloaded++
	now := time.Now()
	s.LastActivity = &now
}

// FormatStats renders the stats the way glFTPd's SITE USER does.
func (s *UserTransferStats) FormatStats() string {
	uploadMB := float64(s.TotalUploaded) / (1024 * 1024)
	downloadMB := float64(s.TotalDownloaded) / (1024 * 1024)
	return fmt.Sprintf("Upload: %.2fMB (%d files), Download: %.2fMB (%d files)",
		uploadMB, s.FilesUploaded, downloadMB, s.FilesDownloaded)
}
