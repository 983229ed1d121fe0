package botfs

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
type MetricsCollector interface {
	// RecordCreate is called after each file creation.
	RecordCreate(duration time.Duration, err error)

	// RecordOpen is called after each open, including the truncate pass.
	RecordOpen(duration time.Duration, err error)

	RecordUnlink(err error)
	RecordRename(err error)

	// RecordBlockRead and RecordBlockWrite are called once per block transfer.
	RecordBlockRead(err error)
	RecordBlockWrite(err error)

	// RecordCopy is called after each file copy with the number of data
	// blocks transferred.
	RecordCopy(blocks int, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordCreate(time.Duration, error)    {}
func (NoopMetricsCollector) RecordOpen(time.Duration, error)      {}
func (NoopMetricsCollector) RecordUnlink(error)                   {}
func (NoopMetricsCollector) RecordRename(error)                   {}
func (NoopMetricsCollector) RecordBlockRead(error)                {}
func (NoopMetricsCollector) RecordBlockWrite(error)               {}
func (NoopMetricsCollector) RecordCopy(int, time.Duration, error) {}

// BasicMetricsCollector provides simple in-memory metrics collection.
type BasicMetricsCollector struct {
	CreateCount      atomic.Int64
	CreateErrors     atomic.Int64
	CreateTotalNanos atomic.Int64
	OpenCount        atomic.Int64
	OpenErrors       atomic.Int64
	UnlinkCount      atomic.Int64
	UnlinkErrors     atomic.Int64
	RenameCount      atomic.Int64
	RenameErrors     atomic.Int64
	BlockReads       atomic.Int64
	BlockReadErrors  atomic.Int64
	BlockWrites      atomic.Int64
	BlockWriteErrors atomic.Int64
	CopyCount        atomic.Int64
	CopyBlocks       atomic.Int64
	CopyErrors       atomic.Int64
}

// RecordCreate implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCreate(duration time.Duration, err error) {
	b.CreateCount.Add(1)
	b.CreateTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.CreateErrors.Add(1)
	}
}

// RecordOpen implements MetricsCollector.
func (b *BasicMetricsCollector) RecordOpen(_ time.Duration, err error) {
	b.OpenCount.Add(1)
	if err != nil {
		b.OpenErrors.Add(1)
	}
}

// RecordUnlink implements MetricsCollector.
func (b *BasicMetricsCollector) RecordUnlink(err error) {
	b.UnlinkCount.Add(1)
	if err != nil {
		b.UnlinkErrors.Add(1)
	}
}

// RecordRename implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRename(err error) {
	b.RenameCount.Add(1)
	if err != nil {
		b.RenameErrors.Add(1)
	}
}

// RecordBlockRead implements MetricsCollector.
func (b *BasicMetricsCollector) RecordBlockRead(err error) {
	b.BlockReads.Add(1)
	if err != nil {
		b.BlockReadErrors.Add(1)
	}
}

// RecordBlockWrite implements MetricsCollector.
func (b *BasicMetricsCollector) RecordBlockWrite(err error) {
	b.BlockWrites.Add(1)
	if err != nil {
		b.BlockWriteErrors.Add(1)
	}
}

// RecordCopy implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCopy(blocks int, _ time.Duration, err error) {
	b.CopyCount.Add(1)
	b.CopyBlocks.Add(int64(blocks))
	if err != nil {
		b.CopyErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		CreateCount:      b.CreateCount.Load(),
		CreateErrors:     b.CreateErrors.Load(),
		CreateAvgNanos:   b.avgCreateNanos(),
		OpenCount:        b.OpenCount.Load(),
		OpenErrors:       b.OpenErrors.Load(),
		UnlinkCount:      b.UnlinkCount.Load(),
		UnlinkErrors:     b.UnlinkErrors.Load(),
		RenameCount:      b.RenameCount.Load(),
		RenameErrors:     b.RenameErrors.Load(),
		BlockReads:       b.BlockReads.Load(),
		BlockReadErrors:  b.BlockReadErrors.Load(),
		BlockWrites:      b.BlockWrites.Load(),
		BlockWriteErrors: b.BlockWriteErrors.Load(),
		CopyCount:        b.CopyCount.Load(),
		CopyBlocks:       b.CopyBlocks.Load(),
		CopyErrors:       b.CopyErrors.Load(),
	}
}

func (b *BasicMetricsCollector) avgCreateNanos() int64 {
	count := b.CreateCount.Load()
	if count == 0 {
		return 0
	}
	return b.CreateTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector metrics.
type BasicMetricsStats struct {
	CreateCount      int64
	CreateErrors     int64
	CreateAvgNanos   int64
	OpenCount        int64
	OpenErrors       int64
	UnlinkCount      int64
	UnlinkErrors     int64
	RenameCount      int64
	RenameErrors     int64
	BlockReads       int64
	BlockReadErrors  int64
	BlockWrites      int64
	BlockWriteErrors int64
	CopyCount        int64
	CopyBlocks       int64
	CopyErrors       int64
}
