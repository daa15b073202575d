// SPDX-FileCopyrightText: Copyright (c) 2016-2025, CloudZero, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package logging

import (
	"bytes"
	"encoding/json"
	"io"
)

// SensitiveFields are removed from every log line written to a user visible
// sink.
var SensitiveFields = []string{"password", "token", "authorization", "secretKey"}

type fieldFilterWriter struct {
	out    io.Writer
	fields []string
}

// NewFieldFilterWriter removes the named top level fields from json log
// lines before passing them on. Lines that are not json objects are written
// unchanged.
func NewFieldFilterWriter(out io.Writer, fields []string) io.Writer {
	return &fieldFilterWriter{out: out, fields: fields}
}

func (w *fieldFilterWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	var entry map[string]json.RawMessage
	if len(w.fields) == 0 || json.Unmarshal(p, &entry) != nil {
		if _, err := w.out.Write(p); err != nil {
			return 0, err
		}
		return len(p), nil
	}

	removed := false
	for _, f := range w.fields {
		if _, ok := entry[f]; ok {
			delete(entry, f)
			removed = true
		}
	}
	if !removed {
		if _, err := w.out.Write(p); err != nil {
			return 0, err
		}
		return len(p), nil
	}

	filtered, err := json.Marshal(entry)
	if err != nil {
		if _, err := w.out.Write(p); err != nil {
			return 0, err
		}
		return len(p), nil
	}
	if bytes.HasSuffix(p, []byte("\n")) {
		filtered = append(filtered, '\n')
	}
	if _, err := w.out.Write(filtered); err != nil {
		return 0, err
	}
	return len(p), nil
}
