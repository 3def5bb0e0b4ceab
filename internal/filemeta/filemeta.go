// Package filemeta defines the file metadata shape shared by the
// directory's catalog, the peer server's local index, and every
// transport DTO that carries file descriptions across the wire.
package filemeta

// Metadata describes a single shared file, owned by whichever peer
// published it. Filename is the search key and is unique within a
// single peer's catalog; it is not unique across the network.
type Metadata struct {
	Filename     string   `json:"filename"`
	RelativePath string   `json:"file_path"`
	Size         int64    `json:"file_size"`
	ContentHash  string   `json:"file_hash"`
	LastModified int64    `json:"last_modified"`
	MimeType     string   `json:"mime_type"`
	Tags         []string `json:"tags"`
}

// DefaultMimeType is used whenever MIME sniffing by extension fails.
const DefaultMimeType = "application/octet-stream"
