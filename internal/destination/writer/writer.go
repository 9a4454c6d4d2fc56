// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package writer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/mia-platform/logrelay/internal/destination"
	"github.com/mia-platform/logrelay/internal/logentry"
)

var _ destination.Sender = &writerDestination{}

type writerDestination struct {
	writer io.Writer

	lock sync.Mutex
}

// NewDestination returns a destination.Sender writing to w. Deliveries always succeed.
func NewDestination(w io.Writer) destination.Sender {
	return &writerDestination{
		writer: w,
	}
}

func (d *writerDestination) SendLog(_ context.Context, _ string, entry logentry.LogEntry) error {
	builder := new(strings.Builder)

	builder.WriteString("Send log:\n")
	builder.WriteString("\tTimestamp: " + entry.Timestamp.Format(time.RFC3339) + "\n")
	builder.WriteString("\tPayload: ")

	encoder := json.NewEncoder(builder)
	encoder.SetIndent("\t", "\t")
	_ = encoder.Encode(entry.Payload())
	builder.WriteString("\n")

	d.lock.Lock()
	defer d.lock.Unlock()
	fmt.Fprint(d.writer, builder.String())
	return nil
}
