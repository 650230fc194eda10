package models

// DriveFile is the stored video as echoed back to the uploader.
type DriveFile struct {
	ID             string `json:"id" msgpack:"id"`
	Name           string `json:"name" msgpack:"name"`
	MimeType       string `json:"mimeType" msgpack:"mimeType"`
	WebViewLink    string `json:"webViewLink" msgpack:"webViewLink"`
	WebContentLink string `json:"webContentLink" msgpack:"webContentLink"`
}

// UploadRecord is one tracking row appended per submission.
// Column order is fixed: name, size, wallet, airtime (PST), tx.
type UploadRecord struct {
	Name      string
	SizeHuman string
	Wallet    string
	When      string
	Tx        string
}

// Row returns the record in sheet column order.
func (r UploadRecord) Row() []interface{} {
	return []interface{}{r.Name, r.SizeHuman, r.Wallet, r.When, r.Tx}
}
