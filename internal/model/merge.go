package model

// MergeStatus classifies a merge outcome for the transport layer
type MergeStatus int

const (
	MergeStatusOK MergeStatus = iota
	MergeStatusInvalidToken
	MergeStatusFailed
)

// Merge result messages
const (
	MergeMessageNoSession    = "no anonymous session to merge"
	MergeMessageInvalidToken = "invalid anonymous session token"
	MergeMessageMerged       = "anonymous data merged successfully"
	MergeMessageNothingFound = "no anonymous data found to merge"
	MergeMessageFailed       = "failed to merge anonymous data"
)

// MergeDetails counters accumulated during a merge
type MergeDetails struct {
	CartItemsTransferred   int  `json:"cartItemsTransferred"`
	DuplicatesHandled      int  `json:"duplicatesHandled"`
	PreferencesTransferred bool `json:"preferencesTransferred"`
}

// MergeResult outcome of folding an anonymous session into an account. It is
// returned to the caller once and never stored.
type MergeResult struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Details MergeDetails `json:"details"`

	Status MergeStatus `json:"-"`
}

// Empty reports whether nothing was moved
func (d MergeDetails) Empty() bool {
	return d.CartItemsTransferred == 0 && d.DuplicatesHandled == 0 && !d.PreferencesTransferred
}
