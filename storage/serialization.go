// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import (
	"fmt"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
)

// entryFormat is the leading byte of every encoded entry.
const entryFormat byte = 1

// MarshalEntry serializes an Entry to bytes.
// Layout: format byte, key, payload, created-at (unix nanos), ttl (nanos).
func MarshalEntry(e *Entry) []byte {
	created := e.CreatedAt.UnixNano()
	ttl := int64(e.TTL)

	size := 1 +
		ord.String.Size(e.Key) +
		varint.Int.Size(len(e.Payload)) + len(e.Payload) +
		varint.Int64.Size(created) +
		varint.Int64.Size(ttl)

	buf := make([]byte, size)
	buf[0] = entryFormat
	n := 1
	n += ord.String.Marshal(e.Key, buf[n:])
	n += varint.Int.Marshal(len(e.Payload), buf[n:])
	n += copy(buf[n:], e.Payload)
	n += varint.Int64.Marshal(created, buf[n:])
	varint.Int64.Marshal(ttl, buf[n:])
	return buf
}

// UnmarshalEntry deserializes an Entry from bytes.
// Any malformed input is reported as ErrSerializationFailed.
func UnmarshalEntry(data []byte) (*Entry, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, ErrTruncatedData)
	}
	if data[0] != entryFormat {
		return nil, fmt.Errorf("%w: unknown entry format %d", ErrSerializationFailed, data[0])
	}
	n := 1

	key, read, err := ord.String.Unmarshal(data[n:])
	if err != nil {
		return nil, fmt.Errorf("%w: key: %w", ErrSerializationFailed, err)
	}
	n += read

	length, read, err := varint.Int.Unmarshal(data[n:])
	if err != nil {
		return nil, fmt.Errorf("%w: payload length: %w", ErrSerializationFailed, err)
	}
	n += read
	if length < 0 || length > len(data)-n {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, ErrTruncatedData)
	}
	payload := make([]byte, length)
	n += copy(payload, data[n:n+length])

	created, read, err := varint.Int64.Unmarshal(data[n:])
	if err != nil {
		return nil, fmt.Errorf("%w: created: %w", ErrSerializationFailed, err)
	}
	n += read

	ttl, read, err := varint.Int64.Unmarshal(data[n:])
	if err != nil {
		return nil, fmt.Errorf("%w: ttl: %w", ErrSerializationFailed, err)
	}
	n += read

	if n != len(data) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrSerializationFailed, len(data)-n)
	}

	return &Entry{
		Key:       key,
		Payload:   payload,
		CreatedAt: time.Unix(0, created).UTC(),
		TTL:       time.Duration(ttl),
	}, nil
}

// MarshalVectors serializes a list of vectors to bytes.
// Layout: count, then per vector its length followed by raw float32 values.
func MarshalVectors(vectors [][]float32) []byte {
	size := varint.Int.Size(len(vectors))
	for _, v := range vectors {
		size += varint.Int.Size(len(v))
		for _, f := range v {
			size += raw.Float32.Size(f)
		}
	}

	buf := make([]byte, size)
	n := varint.Int.Marshal(len(vectors), buf)
	for _, v := range vectors {
		n += varint.Int.Marshal(len(v), buf[n:])
		for _, f := range v {
			n += raw.Float32.Marshal(f, buf[n:])
		}
	}
	return buf
}

// UnmarshalVectors deserializes vectors written by MarshalVectors.
func UnmarshalVectors(data []byte) ([][]float32, error) {
	count, n, err := varint.Int.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: vector count: %w", ErrSerializationFailed, err)
	}
	// each vector needs at least one length byte
	if count < 0 || count > len(data)-n {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, ErrTruncatedData)
	}

	vectors := make([][]float32, count)
	for i := range vectors {
		dim, read, err := varint.Int.Unmarshal(data[n:])
		if err != nil {
			return nil, fmt.Errorf("%w: vector %d length: %w", ErrSerializationFailed, i, err)
		}
		n += read
		if dim < 0 || dim*4 > len(data)-n {
			return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, ErrTruncatedData)
		}
		vector := make([]float32, dim)
		for j := range vector {
			f, read, err := raw.Float32.Unmarshal(data[n:])
			if err != nil {
				return nil, fmt.Errorf("%w: vector %d: %w", ErrSerializationFailed, i, err)
			}
			vector[j] = f
			n += read
		}
		vectors[i] = vector
	}

	if n != len(data) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrSerializationFailed, len(data)-n)
	}
	return vectors, nil
}
