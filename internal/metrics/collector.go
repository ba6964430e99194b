// Package metrics provides a simple CSV telemetry sink for the mailbox
// delivery pipeline: one row per processed message, with timing, size, and
// outcome.
package metrics

import (
	"errors"
	"fmt"
	"os"
	"time"
)

// Collector writes one CSV row per delivered message to an output file.
type Collector struct {
	outfd   *os.File
	counter uint64
}

// Record represents a single message's delivery outcome.
type Record struct {
	collector  *Collector
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	Method     string
	OrigSize   uint32
	ResultSize uint32
	Success    bool
}

// NewCollector creates outfile (which must not already exist) and returns a
// Collector writing to it.
func NewCollector(outfile string) (*Collector, error) {
	mc := &Collector{}
	// Not race-condition-safe, but it's just an attempt to avoid
	// overwriting previously collected data.
	if _, err := os.Stat(outfile); !os.IsNotExist(err) {
		return nil, errors.New("metrics output file already exists")
	}
	var err error
	mc.outfd, err = os.Create(outfile)
	if err != nil {
		return nil, fmt.Errorf("unable to open metrics output file for writing: %w", err)
	}
	if err := mc.writeHeader(); err != nil {
		return nil, err
	}
	return mc, nil
}

func (mc *Collector) writeHeader() error {
	_, err := mc.outfd.WriteString("StartTime;EndTime;Duration (ns);Method;OrigSize (B);ResultSize (B);Success\n")
	if err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	return nil
}

// NewRecord returns a Record with StartTime set to now, associated with
// this Collector so Commit knows where to write.
func (mc *Collector) NewRecord() *Record {
	return &Record{StartTime: time.Now(), collector: mc}
}

// Commit stamps EndTime/Duration and serializes the record to disk. Calling
// Commit on a Record whose Collector is nil (metrics disabled) is a no-op.
func (r *Record) Commit() error {
	r.EndTime = time.Now()
	r.Duration = r.EndTime.Sub(r.StartTime)
	return r.collector.writeRecord(r)
}

// writeRecord formats and writes one row, syncing to disk every 128
// records to bound data loss on crash without syncing on every message.
func (mc *Collector) writeRecord(r *Record) error {
	if mc == nil {
		return nil
	}
	_, err := fmt.Fprintf(mc.outfd, "%s;%s;%d;%s;%d;%d;%t\n",
		r.StartTime, r.EndTime, r.Duration, r.Method, r.OrigSize, r.ResultSize, r.Success)
	if err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	mc.counter++
	if mc.counter%128 == 0 {
		if err := mc.outfd.Sync(); err != nil {
			return fmt.Errorf("failed to sync to disk: %w", err)
		}
	}
	return nil
}

// Close closes the underlying file handle.
func (mc *Collector) Close() error {
	return mc.outfd.Close()
}
