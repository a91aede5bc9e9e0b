package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	contentTypeJSON    = "application/json"
	contentTypeMsgpack = "application/msgpack"

	// Bodies smaller than this are sent uncompressed.
	minCompressSize = 1024
)

// errEncode reports that v could not be serialized. Nothing has been written
// to the client when respond returns it.
var errEncode = errors.New("encode response")

// EncodeAll is safe for concurrent use, so one encoder serves every request.
var zstdEncoder = func() *zstd.Encoder {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic(err)
	}
	return enc
}()

// respond writes v as JSON, or as MessagePack when the client asks for it,
// and compresses the body with zstd when the client accepts it.
func respond(w http.ResponseWriter, r *http.Request, status int, v any) error {
	var body bytes.Buffer
	contentType := contentTypeJSON
	if accepts(r.Header.Get("Accept"), contentTypeMsgpack) {
		contentType = contentTypeMsgpack
		enc := msgpack.NewEncoder(&body)
		enc.SetCustomStructTag("json")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("%w: %v", errEncode, err)
		}
	} else if err := json.NewEncoder(&body).Encode(v); err != nil {
		return fmt.Errorf("%w: %v", errEncode, err)
	}

	payload := body.Bytes()
	h := w.Header()
	h.Add("Vary", "Accept")
	h.Add("Vary", "Accept-Encoding")
	if len(payload) >= minCompressSize && accepts(r.Header.Get("Accept-Encoding"), "zstd") {
		payload = zstdEncoder.EncodeAll(payload, make([]byte, 0, len(payload)/4))
		h.Set("Content-Encoding", "zstd")
	}
	h.Set("Content-Type", contentType)
	h.Set("Content-Length", strconv.Itoa(len(payload)))
	w.WriteHeader(status)
	_, err := w.Write(payload)
	return err
}

// accepts reports whether a comma-separated Accept-style header lists token
// with a non-zero quality.
func accepts(header, token string) bool {
	for part := range strings.SplitSeq(header, ",") {
		name, params, _ := strings.Cut(part, ";")
		if !strings.EqualFold(strings.TrimSpace(name), token) {
			continue
		}
		q := strings.TrimSpace(params)
		if v, ok := strings.CutPrefix(q, "q="); ok {
			if f, err := strconv.ParseFloat(v, 64); err == nil && f == 0 {
				return false
			}
		}
		return true
	}
	return false
}
