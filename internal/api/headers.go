package api

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"

	"github.com/dmitrijs2005/cipherbox/internal/common"
	"google.golang.org/grpc/metadata"
)

// Metadata keys carrying file parameters next to the ciphertext stream.
const (
	HeaderFileID      = "x-file-id"
	HeaderFileIV      = "x-file-iv"
	HeaderFileSalt    = "x-file-salt"
	HeaderFilename    = "x-original-filename"
	HeaderMimeType    = "x-file-mimetype"
	HeaderContentHash = "x-content-hash"
	HeaderFileSize    = "x-file-size"
)

// FileHeader is the out-of-band part of an upload or download. IV and Salt
// are base64, the content hash hex and the filename URL-escaped on the
// wire.
type FileHeader struct {
	ID          string
	Filename    string
	MimeType    string
	IV          []byte
	Salt        []byte
	ContentHash []byte
	Size        int64
}

func (h FileHeader) MD() metadata.MD {
	md := metadata.Pairs(
		HeaderFileIV, base64.StdEncoding.EncodeToString(h.IV),
		HeaderFileSalt, base64.StdEncoding.EncodeToString(h.Salt),
		HeaderFilename, url.PathEscape(h.Filename),
		HeaderMimeType, h.MimeType,
		HeaderContentHash, hex.EncodeToString(h.ContentHash),
		HeaderFileSize, strconv.FormatInt(h.Size, 10),
	)
	if h.ID != "" {
		md.Set(HeaderFileID, h.ID)
	}
	return md
}

func first(md metadata.MD, key string) (string, error) {
	v := md.Get(key)
	if len(v) == 0 || v[0] == "" {
		return "", fmt.Errorf("%w: missing %s", common.ErrInvalidInput, key)
	}
	return v[0], nil
}

// ParseFileHeader reads a FileHeader from md. Missing or malformed values
// yield common.ErrInvalidInput; lengths are left to the caller.
func ParseFileHeader(md metadata.MD) (FileHeader, error) {
	var h FileHeader
	var err error
	var raw string

	if v := md.Get(HeaderFileID); len(v) > 0 {
		h.ID = v[0]
	}
	if raw, err = first(md, HeaderFileIV); err != nil {
		return h, err
	}
	if h.IV, err = base64.StdEncoding.DecodeString(raw); err != nil {
		return h, fmt.Errorf("%w: %s: %v", common.ErrInvalidInput, HeaderFileIV, err)
	}
	if raw, err = first(md, HeaderFileSalt); err != nil {
		return h, err
	}
	if h.Salt, err = base64.StdEncoding.DecodeString(raw); err != nil {
		return h, fmt.Errorf("%w: %s: %v", common.ErrInvalidInput, HeaderFileSalt, err)
	}
	if raw, err = first(md, HeaderFilename); err != nil {
		return h, err
	}
	if h.Filename, err = url.PathUnescape(raw); err != nil {
		return h, fmt.Errorf("%w: %s: %v", common.ErrInvalidInput, HeaderFilename, err)
	}
	if h.MimeType, err = first(md, HeaderMimeType); err != nil {
		return h, err
	}
	if raw, err = first(md, HeaderContentHash); err != nil {
		return h, err
	}
	if h.ContentHash, err = hex.DecodeString(raw); err != nil {
		return h, fmt.Errorf("%w: %s: %v", common.ErrInvalidInput, HeaderContentHash, err)
	}
	if raw, err = first(md, HeaderFileSize); err != nil {
		return h, err
	}
	if h.Size, err = strconv.ParseInt(raw, 10, 64); err != nil || h.Size < 0 {
		return h, fmt.Errorf("%w: %s: %q", common.ErrInvalidInput, HeaderFileSize, raw)
	}
	return h, nil
}
