package dto

// ScanRequest carries the token presented at a checkpoint. The token is
// either the signed entry token or the booking reference.
type ScanRequest struct {
	Token string `json:"token" binding:"required"`
}
