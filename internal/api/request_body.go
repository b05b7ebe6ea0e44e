package api

import (
	"bytes"
	"encoding/json"
	"sync"
)

// An embedding batch of a few thousand rows encodes to several megabytes, and
// a large CSV is sent as many such batches back to back. Buffers are pooled so
// each batch does not grow a fresh one from zero.
const maxPooledBodySize = 4 << 20

var bodyPool = sync.Pool{
	New: func() interface{} { return new(bytes.Buffer) },
}

// encodeBody JSON-encodes v into a pooled buffer. The returned bytes stay
// valid until release is called, which must happen after the last retry of
// the request that carries them.
func encodeBody(v interface{}) ([]byte, func(), error) {
	buf := bodyPool.Get().(*bytes.Buffer)
	buf.Reset()
	release := func() {
		if buf.Cap() <= maxPooledBodySize {
			bodyPool.Put(buf)
		}
	}
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		release()
		return nil, func() {}, err
	}
	return buf.Bytes(), release, nil
}
