package wal

import (
	"fmt"

	"github.com/kartikbazzad/bunbase/searchcore/internal/util"
)

// Recovery replays the transaction log after a restart: every surviving
// record, in serial order, is handed back for the feed handler to re-apply.
// Replay is idempotent downstream (each attribute discards records whose
// serial is at or below its lastSyncToken), so recovery itself does no
// filtering beyond integrity checks.
type Recovery struct {
	wal *WAL
}

// NewRecovery creates a new recovery instance
func NewRecovery(wal *WAL) *Recovery {
	return &Recovery{wal: wal}
}

// Recover reads all surviving records and returns them for replay, after
// verifying serial monotonicity. A corrupt log is fatal: the error is
// returned rather than skipping damaged records.
func (r *Recovery) Recover() ([]*Record, error) {
	records, err := r.wal.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("recovery failed: %w", err)
	}
	if err := verifySerialOrder(records); err != nil {
		return nil, err
	}
	return records, nil
}

// RecoverToSerial recovers every record with serial <= targetSerial.
func (r *Recovery) RecoverToSerial(targetSerial uint64) ([]*Record, error) {
	allRecords, err := r.Recover()
	if err != nil {
		return nil, err
	}

	var records []*Record
	for _, record := range allRecords {
		if record.Serial <= targetSerial {
			records = append(records, record)
		}
	}

	return records, nil
}

// VerifyIntegrity checks that every record decodes cleanly and serials are
// strictly increasing across the whole log.
func (r *Recovery) VerifyIntegrity() error {
	records, err := r.wal.ReadAll()
	if err != nil {
		return fmt.Errorf("%w: %v", util.ErrLogCorrupt, err)
	}
	return verifySerialOrder(records)
}

// LastSerial returns the serial of the newest record in the log, 0 if the
// log is empty.
func (r *Recovery) LastSerial() (uint64, error) {
	records, err := r.wal.ReadAll()
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}
	return records[len(records)-1].Serial, nil
}

func verifySerialOrder(records []*Record) error {
	var prev uint64
	for i, record := range records {
		if record.Serial <= prev {
			return fmt.Errorf("%w: serial not monotonic at record %d (prev=%d, current=%d)",
				util.ErrLogCorrupt, i, prev, record.Serial)
		}
		prev = record.Serial
	}
	return nil
}
