package catalog

import "encoding/base64"

// Icon is a fetched site icon.
type Icon struct {
	ContentType string
	Data        []byte
	// SourceURL is where the bytes came from, for logging.
	SourceURL string
}

// DataURI encodes the icon as data:<type>;base64,<data>.
func (i Icon) DataURI() string {
	return "data:" + i.ContentType + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}
