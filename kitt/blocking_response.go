package kitt

// FakeResponse substitutes a locally served document for the network response
type FakeResponse struct {
	URL            string
	MIMEType       string
	ExpectedLength int
}

// BlockingResponse is the decision accumulated over all rule actions of one event.
// Cancel is only ever OR-ed in, every other field is last write wins.
type BlockingResponse struct {
	Cancel          bool
	RedirectURL     *string
	RequestHeaders  map[string]string
	ResponseHeaders map[string]string
	FakeResponse    *FakeResponse
	FakeData        []byte
}

// MergeCancel ors the cancel flag into the response
func (b *BlockingResponse) MergeCancel(cancel bool) {
	b.Cancel = b.Cancel || cancel
}

// IsCancelled once true, later redirect/header writes must be ignored by consumers
func (b *BlockingResponse) IsCancelled() bool {
	return b.Cancel
}

// IsRedirect returns true if a non empty redirect url was set
func (b *BlockingResponse) IsRedirect() bool {
	return b.RedirectURL != nil && *b.RedirectURL != ""
}

// IsModified returns true if any decision was recorded
func (b *BlockingResponse) IsModified() bool {
	return b.Cancel || b.RedirectURL != nil || b.RequestHeaders != nil || b.ResponseHeaders != nil || b.FakeResponse != nil
}

// StringPtr helper for redirect urls
func StringPtr(s string) *string {
	return &s
}
