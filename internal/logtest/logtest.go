/*
Copyright © 2020 A. Jensen <jensen.aaro@gmail.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

// Package logtest provides an in-memory gke.Logger for tests.
package logtest

import (
	"cloud.google.com/go/logging"
	"context"
	"fmt"
	"github.com/ajjensen13/gke"
	"io/ioutil"
	"log"
	"sync"
)

// Recorder keeps every entry logged through it.
type Recorder struct {
	mu      sync.Mutex
	entries []logging.Entry
}

// New returns a logger backed by a fresh Recorder.
func New() (gke.Logger, *Recorder) {
	r := &Recorder{}
	return gke.Logger{Logger: r}, r
}

func (r *Recorder) StandardLogger(severity logging.Severity) *log.Logger {
	return log.New(ioutil.Discard, severity.String()+": ", 0)
}

func (r *Recorder) Log(entry logging.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
}

func (r *Recorder) Flush() error { return nil }

func (r *Recorder) LogSync(_ context.Context, entry logging.Entry) error {
	r.Log(entry)
	return nil
}

func (r *Recorder) Entries() []logging.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]logging.Entry(nil), r.entries...)
}

// Messages renders each entry payload at or above severity as a string.
func (r *Recorder) Messages(severity logging.Severity) []string {
	var result []string
	for _, e := range r.Entries() {
		if e.Severity < severity {
			continue
		}
		switch p := e.Payload.(type) {
		case fmt.Stringer:
			result = append(result, p.String())
		case gke.MsgData:
			result = append(result, p.Message)
		default:
			result = append(result, fmt.Sprint(p))
		}
	}
	return result
}
