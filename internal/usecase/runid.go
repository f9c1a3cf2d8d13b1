package usecase

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewRunID returns YYYYMMDD_HHMMSS_<6 hex>.
func NewRunID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return now.UTC().Format("20060102_150405") + "_" + suffix
}
