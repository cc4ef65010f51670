package engine

import (
	"github.com/ajitpratap0/stratus/pkg/models"
	"github.com/ajitpratap0/stratus/pkg/pool"
)

// BufferFlag marks control buffers
type BufferFlag uint8

const (
	// FlagNone marks a data buffer
	FlagNone BufferFlag = 0
	// FlagEOE marks the end of an epoch
	FlagEOE BufferFlag = 1 << 0
	// FlagEOF marks the end of data
	FlagEOF BufferFlag = 1 << 1
)

// DataBuffer is the unit moving through connectors: a block of rows sharing
// one schema, or a control marker. A buffer has one owner at a time; pushing
// it hands it to the connector and popping hands it to the consumer.
type DataBuffer struct {
	id     int64
	flags  BufferFlag
	schema *models.Schema
	rows   []models.Row
	pooled bool
}

var (
	eofBuffer = &DataBuffer{id: -1, flags: FlagEOF}
	eoeBuffer = &DataBuffer{id: -1, flags: FlagEOE}
)

// NewDataBuffer wraps rows into a buffer. The buffer takes ownership of rows.
func NewDataBuffer(id int64, schema *models.Schema, rows []models.Row) *DataBuffer {
	return &DataBuffer{id: id, schema: schema, rows: rows}
}

// NewPooledDataBuffer returns an empty buffer whose row slice comes from the
// shared row pool. Release gives the slice back.
func NewPooledDataBuffer(id int64, schema *models.Schema, capacity int) *DataBuffer {
	return &DataBuffer{id: id, schema: schema, rows: pool.GetRowSlice(capacity), pooled: true}
}

// EOF returns the end-of-data marker
func EOF() *DataBuffer { return eofBuffer }

// EOE returns the end-of-epoch marker
func EOE() *DataBuffer { return eoeBuffer }

// ID returns the buffer id; control markers report -1
func (b *DataBuffer) ID() int64 { return b.id }

// Flags returns the control flags
func (b *DataBuffer) Flags() BufferFlag { return b.flags }

// IsEOF reports whether b is the end-of-data marker
func (b *DataBuffer) IsEOF() bool { return b.flags&FlagEOF != 0 }

// IsEOE reports whether b is the end-of-epoch marker
func (b *DataBuffer) IsEOE() bool { return b.flags&FlagEOE != 0 }

// IsControl reports whether b carries a marker instead of rows
func (b *DataBuffer) IsControl() bool { return b.flags != FlagNone }

// Schema returns the schema shared by the buffer's rows
func (b *DataBuffer) Schema() *models.Schema { return b.schema }

// Rows returns the buffer's rows. The slice is owned by the buffer.
func (b *DataBuffer) Rows() []models.Row { return b.rows }

// NumRows returns the number of rows
func (b *DataBuffer) NumRows() int { return len(b.rows) }

// Append adds a row to a data buffer
func (b *DataBuffer) Append(r models.Row) {
	b.rows = append(b.rows, r)
}

// Release returns pooled storage. The buffer must not be used afterwards.
// Releasing a marker is a no-op.
func (b *DataBuffer) Release() {
	if b.IsControl() || !b.pooled {
		return
	}
	pool.PutRowSlice(b.rows)
	b.rows = nil
	b.pooled = false
}
