package mailbox

// AttachmentDetail describes one stored attachment inside a Record.
type AttachmentDetail struct {
	Filename    string `json:"filename"`
	CID         string `json:"cid"`
	ID          string `json:"id"`
	DownloadURL string `json:"download_url"`
	Size        int64  `json:"size"`
}

// Parsed is the normalized part of a Record.
type Parsed struct {
	Subject            string             `json:"subject"`
	Body               string             `json:"body"`
	HTMLBody           string             `json:"htmlbody"`
	From               string             `json:"from"`
	Attachments        []string           `json:"attachments"`
	AttachmentsDetails []AttachmentDetail `json:"attachments_details"`
}

// Record is the JSON document stored per message per recipient.
type Record struct {
	SenderIP string   `json:"sender_ip"`
	From     string   `json:"from"`
	Rcpts    []string `json:"rcpts"`
	Raw      string   `json:"raw"`
	Parsed   Parsed   `json:"parsed"`
}

// Summary is one entry of a mailbox listing.
type Summary struct {
	Email       string   `json:"email"`
	ID          string   `json:"id"`
	From        string   `json:"from"`
	Subject     string   `json:"subject"`
	MD5         string   `json:"md5"`
	MailLen     int      `json:"maillen"`
	Body        string   `json:"body,omitempty"`
	Attachments []string `json:"attachments,omitempty"`
}
